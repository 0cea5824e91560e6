// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

type pcrOutput struct {
	Index uint16 `json:"index"`
	Lock  *bool  `json:"lock,omitempty"`
	Data  string `json:"data"`
}

type lockOutput struct {
	Index *uint16 `json:"index,omitempty"`
	Range *uint16 `json:"range,omitempty"`
	Lock  bool    `json:"lock"`
}

func newDescribePCRCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "describe-pcr INDEX",
		Short: "Print the value and lock state of a PCR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseUint16("PCR index", args[0])
			if err != nil {
				return err
			}
			sess, log, err := e.session(cmd)
			if err != nil {
				return err
			}
			defer closeSession(sess, log)

			desc, err := sess.GetPCRDescription(index)
			if err != nil {
				return fmt.Errorf("describing PCR %d: %w", index, err)
			}
			return writeJSON(cmd.OutOrStdout(), pcrOutput{
				Index: index,
				Lock:  &desc.Lock,
				Data:  hex.EncodeToString(desc.Data),
			})
		},
	}
}

func newExtendPCRCmd(e *env) *cobra.Command {
	var data, dataFile string

	cmd := &cobra.Command{
		Use:   "extend-pcr INDEX",
		Short: "Extend a PCR and print its new value",
		Long: "Extend a PCR with the given data and print its new value.\n" +
			"The data is taken literally from --data or read from --data-file.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseUint16("PCR index", args[0])
			if err != nil {
				return err
			}

			measurement := []byte(data)
			if cmd.Flags().Changed("data-file") {
				measurement, err = e.fs.ReadFile(dataFile)
				if err != nil {
					return fmt.Errorf("reading data file: %w", err)
				}
			}

			sess, log, err := e.session(cmd)
			if err != nil {
				return err
			}
			defer closeSession(sess, log)

			log.Debug("Extending PCR", "index", index, "size", len(measurement))
			value, err := sess.ExtendPCR(index, measurement)
			if err != nil {
				return fmt.Errorf("extending PCR %d: %w", index, err)
			}
			return writeJSON(cmd.OutOrStdout(), pcrOutput{Index: index, Data: hex.EncodeToString(value)})
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "data to extend the PCR with")
	cmd.Flags().StringVar(&dataFile, "data-file", "", "file holding the data to extend the PCR with")
	cmd.MarkFlagsMutuallyExclusive("data", "data-file")
	cmd.MarkFlagsOneRequired("data", "data-file")
	return cmd
}

func newLockPCRCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "lock-pcr INDEX",
		Short: "Make a PCR read-only",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseUint16("PCR index", args[0])
			if err != nil {
				return err
			}
			sess, log, err := e.session(cmd)
			if err != nil {
				return err
			}
			defer closeSession(sess, log)

			if err := sess.LockPCR(index); err != nil {
				return fmt.Errorf("locking PCR %d: %w", index, err)
			}
			log.Info("Locked PCR", "index", index)
			return writeJSON(cmd.OutOrStdout(), lockOutput{Index: &index, Lock: true})
		},
	}
}

func newLockPCRsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "lock-pcrs RANGE",
		Short: "Make all PCRs with an index lower than RANGE read-only",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := parseUint16("PCR range", args[0])
			if err != nil {
				return err
			}
			sess, log, err := e.session(cmd)
			if err != nil {
				return err
			}
			defer closeSession(sess, log)

			if err := sess.LockPCRs(rng); err != nil {
				return fmt.Errorf("locking PCRs [0, %d): %w", rng, err)
			}
			log.Info("Locked PCRs", "range", rng)
			return writeJSON(cmd.OutOrStdout(), lockOutput{Range: &rng, Lock: true})
		},
	}
}
