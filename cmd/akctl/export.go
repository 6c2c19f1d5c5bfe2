package main

import (
	"fmt"
	"io"
	"os"

	"github.com/macterra/go-authority-kernel/audit"
	"github.com/macterra/go-authority-kernel/audit/archive"
	"github.com/macterra/go-authority-kernel/audit/store/badger"
	"github.com/macterra/go-authority-kernel/constitution"
	"github.com/macterra/go-authority-kernel/core/iterable"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the audit log and its blocks as a CAR archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := os.ReadFile(constitutionPath(cmd))
			if err != nil {
				return fmt.Errorf("reading constitution: %w", err)
			}
			c, err := constitution.Load(cb)
			if err != nil {
				return fmt.Errorf("loading constitution: %w", err)
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			log, err := audit.NewLog(c.Hash(), badger.Wrap(db))
			if err != nil {
				return err
			}
			blocks, err := allBlocks(db)
			if err != nil {
				return err
			}
			reader, err := archive.Export(log, iterable.From(blocks))
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating archive file: %w", err)
			}
			defer f.Close()
			n, err := io.Copy(f, reader)
			if err != nil {
				return fmt.Errorf("writing archive: %w", err)
			}
			logger.Info("exported archive",
				zap.String("path", out),
				zap.Int64("bytes", n),
				zap.Int("blocks", len(blocks)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "audit.car", "archive file path")
	cmd.Flags().StringP("constitution", "c", "constitution.json", "constitution file (DAG-JSON)")
	return cmd
}
