// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: GPL-3.0-only

// Package logging sets up the structured loggers used by the NSM binaries.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// Flag is the flag name for setting the logging level.
	Flag = "log-level"
	// FlagShorthand is the shorthand flag name for setting the logging level.
	FlagShorthand = "l"
	// DefaultFlagValue is the default log level of long running services.
	DefaultFlagValue = "info"
	// DefaultFlagValueCLI is the default log level of command line tools.
	// Their stdout carries the command result, so only problems are logged by default.
	DefaultFlagValueCLI = "warn"
	// FlagInfo is the usage string for the log level flag.
	FlagInfo = "set logging level (debug, info, warn, error, or a number)"

	// FileFlag is the flag name for mirroring logs into a rotated file.
	FileFlag = "log-file"
	// FileFlagInfo is the usage string for the log file flag.
	FileFlagInfo = "additionally write logs to this file, rotating it when it grows large"
)

// NewLogger returns a JSON [*slog.Logger] writing to [os.Stderr].
func NewLogger(logLevel string) *slog.Logger {
	return newJSONLogger(logLevel, os.Stderr)
}

// NewCLILogger returns a text [*slog.Logger] writing to out.
// Unknown levels fall back to warn.
func NewCLILogger(logLevel string, out io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: LevelFromString(logLevel, slog.LevelWarn),
	}))
}

// NewFileLogger returns a JSON [*slog.Logger] writing to output and to a rotated file at filename.
// An empty filename is the same as [NewLogger] writing to output.
func NewFileLogger(logLevel string, output io.Writer, filename string) *slog.Logger {
	if filename == "" {
		return newJSONLogger(logLevel, output)
	}
	rotated := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     7, // days
	}
	return newJSONLogger(logLevel, io.MultiWriter(rotated, output))
}

func newJSONLogger(logLevel string, out io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: LevelFromString(logLevel, slog.LevelInfo),
	}))
}

// LevelFromString converts a level name or number to a [slog.Level].
// An empty string means info. Anything else that is neither a known name
// nor a number yields fallback.
func LevelFromString(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "", "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	numeric, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return slog.Level(numeric)
}

// NewLogWrapper returns a [*log.Logger] forwarding every line to the error level of slogger.
// It is meant for [net/http.Server.ErrorLog] and similar standard library hooks.
func NewLogWrapper(slogger *slog.Logger) *log.Logger {
	return log.New(errorWriter{slogger}, "", 0)
}

type errorWriter struct {
	*slog.Logger
}

func (w errorWriter) Write(p []byte) (int, error) {
	w.Error(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
