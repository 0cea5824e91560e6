// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

// Package cmd defines the commands of nsmctl.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/edgelesssys/nitro-nsm/internal/constants"
	"github.com/edgelesssys/nitro-nsm/internal/logging"
	"github.com/edgelesssys/nitro-nsm/nsm"
	"github.com/edgelesssys/nitro-nsm/nsm/driver"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	devicePath string
)

// env holds what the commands need from the outside world.
type env struct {
	fs        afero.Afero
	newDriver func(path string) driver.Driver
}

// New returns the root command of nsmctl.
func New() *cobra.Command {
	return newRootCmd(&env{
		fs:        afero.Afero{Fs: afero.NewOsFs()},
		newDriver: defaultDriver,
	})
}

func newRootCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "nsmctl",
		Short:        "Query and modify the Nitro Secure Module of the enclave this runs in.",
		Args:         cobra.NoArgs,
		Version:      constants.Version(),
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&logLevel, logging.Flag, logging.FlagShorthand, logging.DefaultFlagValueCLI, logging.FlagInfo)
	cmd.PersistentFlags().StringVar(&devicePath, "device", constants.DevicePath(),
		fmt.Sprintf("path of the NSM device, defaults to $%s or %s", constants.DeviceEnv, constants.DefaultDevicePath))

	cmd.AddCommand(
		newDescribeCmd(e),
		newDescribePCRCmd(e),
		newExtendPCRCmd(e),
		newLockPCRCmd(e),
		newLockPCRsCmd(e),
		newAttestCmd(e),
		newRandomCmd(e),
	)
	return cmd
}

// session opens the device and returns a session together with the command's logger.
func (e *env) session(cmd *cobra.Command) (*nsm.Session, *slog.Logger, error) {
	log := logging.NewCLILogger(logLevel, cmd.ErrOrStderr())

	log.Debug("Opening NSM device", "path", devicePath)
	sess, err := nsm.New(e.newDriver(devicePath)).OpenSession()
	if err != nil {
		return nil, nil, fmt.Errorf("opening NSM device %q: %w", devicePath, err)
	}
	log.Debug("NSM device opened", "fd", sess.FD())
	return sess, log, nil
}

// closeSession closes sess and logs a failure, which can only be a programming error.
func closeSession(sess *nsm.Session, log *slog.Logger) {
	if err := sess.Close(); err != nil {
		log.Warn("Closing NSM session", "error", err)
	}
}

// parseUint16 parses a PCR index or range argument.
func parseUint16(name, arg string) (uint16, error) {
	v, err := strconv.ParseUint(arg, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a number between 0 and 65535", name, arg)
	}
	return uint16(v), nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
