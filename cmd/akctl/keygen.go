package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/macterra/go-authority-kernel/principal"
	"github.com/macterra/go-authority-kernel/principal/ed25519/signer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newKeygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 kernel authority key",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := signer.Generate()
			if err != nil {
				return fmt.Errorf("generating key: %w", err)
			}
			formatted, err := signer.Format(s)
			if err != nil {
				return fmt.Errorf("formatting key: %w", err)
			}
			if out == "" {
				out = filepath.Join(dataDir, "authority.key")
			}
			if err := os.MkdirAll(filepath.Dir(out), 0700); err != nil {
				return err
			}
			if err := os.WriteFile(out, []byte(formatted), 0600); err != nil {
				return fmt.Errorf("writing key file: %w", err)
			}
			logger.Info("generated authority key",
				zap.String("did", s.DID().String()),
				zap.String("path", out))
			fmt.Println(s.DID().String())
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "key file path (default <data-dir>/authority.key)")
	return cmd
}

func loadSigner(path string) (principal.Signer, error) {
	if path == "" {
		path = filepath.Join(dataDir, "authority.key")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file %s: %w", path, err)
	}
	return signer.Parse(strings.TrimSpace(string(b)))
}
