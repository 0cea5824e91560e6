// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

package cmd

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/edgelesssys/nitro-nsm/internal/constants"
	"github.com/spf13/cobra"
)

func newRandomCmd(e *env) *cobra.Command {
	var size int
	var out string

	cmd := &cobra.Command{
		Use:   "random",
		Short: "Print entropy from the NSM",
		Long: "Print entropy from the NSM.\n" +
			"Without --bytes, the output holds as many bytes as the NSM returns for a single request.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if size < 0 || size > constants.MaxRandomBytes {
				return fmt.Errorf("--bytes must be between 0 and %d", constants.MaxRandomBytes)
			}

			sess, log, err := e.session(cmd)
			if err != nil {
				return err
			}
			defer closeSession(sess, log)

			var random []byte
			if cmd.Flags().Changed("bytes") {
				random = make([]byte, size)
				if _, err := io.ReadFull(sess, random); err != nil {
					return fmt.Errorf("reading %d random bytes: %w", size, err)
				}
			} else if random, err = sess.GetRandom(); err != nil {
				return fmt.Errorf("getting random bytes: %w", err)
			}

			if out != "" {
				if err := e.fs.WriteFile(out, random, 0o600); err != nil {
					return fmt.Errorf("writing random bytes: %w", err)
				}
				log.Info("Wrote random bytes", "path", out, "size", len(random))
				return nil
			}
			return writeJSON(cmd.OutOrStdout(), struct {
				Random string `json:"random"`
			}{hex.EncodeToString(random)})
		},
	}

	cmd.Flags().IntVarP(&size, "bytes", "n", 0, "number of random bytes to return")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the raw bytes to this file instead of printing them")
	return cmd
}
