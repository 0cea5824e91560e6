// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDescribeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Print the version, module ID, PCR count and digest of the NSM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, log, err := e.session(cmd)
			if err != nil {
				return err
			}
			defer closeSession(sess, log)

			desc, err := sess.GetDescription()
			if err != nil {
				return fmt.Errorf("describing NSM: %w", err)
			}
			if desc.LockedPCRs == nil {
				desc.LockedPCRs = []uint16{}
			}
			return writeJSON(cmd.OutOrStdout(), desc)
		},
	}
}
