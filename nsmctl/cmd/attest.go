// Copyright (c) Edgeless Systems GmbH
// SPDX-License-Identifier: MIT

package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/edgelesssys/nitro-nsm/nsm"
	"github.com/spf13/cobra"
)

func newAttestCmd(e *env) *cobra.Command {
	var userData, nonce, publicKeyFile, out string

	cmd := &cobra.Command{
		Use:   "attest",
		Short: "Request an attestation document from the NSM",
		Long: "Request an attestation document from the NSM.\n" +
			"Values whose flags are omitted are left out of the document. " +
			"A flag set to the empty string adds an empty value instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()

			publicKey := nsm.None()
			if flags.Changed("public-key-file") {
				key, err := e.fs.ReadFile(publicKeyFile)
				if err != nil {
					return fmt.Errorf("reading public key: %w", err)
				}
				publicKey = nsm.Some(key)
			}

			sess, log, err := e.session(cmd)
			if err != nil {
				return err
			}
			defer closeSession(sess, log)

			doc, err := sess.GetAttestationDoc(
				optionalFlag(flags.Changed("user-data"), userData),
				optionalFlag(flags.Changed("nonce"), nonce),
				publicKey,
			)
			if err != nil {
				return fmt.Errorf("requesting attestation document: %w", err)
			}

			if out != "" {
				if err := e.fs.WriteFile(out, doc, 0o644); err != nil {
					return fmt.Errorf("writing attestation document: %w", err)
				}
				log.Info("Wrote attestation document", "path", out, "size", len(doc))
				return nil
			}
			return writeJSON(cmd.OutOrStdout(), struct {
				Document string `json:"document"`
			}{hex.EncodeToString(doc)})
		},
	}

	cmd.Flags().StringVar(&userData, "user-data", "", "user data to include in the document")
	cmd.Flags().StringVar(&nonce, "nonce", "", "nonce to include in the document")
	cmd.Flags().StringVar(&publicKeyFile, "public-key-file", "", "file holding the public key to include in the document")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the raw CBOR document to this file instead of printing it")
	return cmd
}

func optionalFlag(set bool, value string) nsm.Optional {
	if !set {
		return nsm.None()
	}
	return nsm.Some([]byte(value))
}
