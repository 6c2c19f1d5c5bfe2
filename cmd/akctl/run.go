package main

import (
	"fmt"
	"os"

	"github.com/macterra/go-authority-kernel/audit/store/badger"
	"github.com/macterra/go-authority-kernel/constitution"
	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/macterra/go-authority-kernel/kernel"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	var keyPath string
	cmd := &cobra.Command{
		Use:   "run [artifact files]",
		Short: "Run one admission cycle over artifact files",
		Long: `Canonicalizes each artifact file, buffers the survivors, runs a
single cycle and appends the cycle record to the persisted audit log. A
restart verifies the whole persisted log by replay before continuing it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := loadSigner(keyPath)
			if err != nil {
				return err
			}
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

			k, err := kernel.Reopen(signer, c, badger.Wrap(db), func(l ipld.Link) (ipld.Block, bool) {
				return getBlock(db, l)
			})
			if err != nil {
				return fmt.Errorf("reopening kernel: %w", err)
			}
			logger.Info("kernel ready",
				zap.String("authority", signer.DID().String()),
				zap.String("constitution", c.Hash().String()),
				zap.Uint64("cycle", k.Cycle()))

			for _, path := range args {
				input, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading artifact file %s: %w", path, err)
				}
				a, err := k.Submit(input)
				if err != nil {
					logger.Warn("artifact rejected at codec",
						zap.String("file", path), zap.Error(err))
					continue
				}
				logger.Debug("artifact buffered",
					zap.String("file", path),
					zap.String("cid", a.Link().String()),
					zap.String("kind", string(a.Kind())))
			}

			record, err := k.RunCycle()
			if err != nil {
				return fmt.Errorf("running cycle: %w", err)
			}
			if err := persistBlocks(db, k.Blocks()); err != nil {
				return fmt.Errorf("persisting blocks: %w", err)
			}

			density := k.Density()
			logger.Info("cycle committed",
				zap.Uint64("cycle", record.Cycle()),
				zap.Int("decisions", len(record.Decisions())),
				zap.Float64("density", density.Value()),
				zap.String("state_hash", record.StateHashEnd().String()))
			fmt.Println(record.StateHashEnd().String())
			return nil
		},
	}
	cmd.Flags().StringP("constitution", "c", "constitution.json", "constitution file (DAG-JSON)")
	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "authority key file")
	return cmd
}
