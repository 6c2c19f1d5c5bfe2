package main

import (
	"fmt"
	"os"

	"github.com/macterra/go-authority-kernel/audit"
	"github.com/macterra/go-authority-kernel/audit/archive"
	"github.com/macterra/go-authority-kernel/audit/store/badger"
	"github.com/macterra/go-authority-kernel/constitution"
	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/macterra/go-authority-kernel/core/iterable"
	"github.com/macterra/go-authority-kernel/kernel"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newReplayCmd() *cobra.Command {
	var keyPath, carPath string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Verify the audit log by full replay",
		Long: `Rebuilds a fresh kernel from the initial constitution and re-runs
every logged cycle, comparing each decision and the state hash chain. Reads
the persisted log by default, or a CAR archive with --archive.`,
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

			var records iterable.Iterator[*audit.Record]
			var blocks kernel.BlockSource

			if carPath != "" {
				f, err := os.Open(carPath)
				if err != nil {
					return fmt.Errorf("opening archive: %w", err)
				}
				defer f.Close()
				rs, bs, err := archive.Import(f)
				if err != nil {
					return err
				}
				records = iterable.From(rs)
				blocks = func(l ipld.Link) (ipld.Block, bool) {
					b, ok := bs[l.String()]
					return b, ok
				}
			} else {
				db, err := openDB()
				if err != nil {
					return err
				}
				defer db.Close()
				// NewLog verifies the stored chain before replay touches it.
				log, err := audit.NewLog(c.Hash(), badger.Wrap(db))
				if err != nil {
					return err
				}
				records, err = log.Iterate()
				if err != nil {
					return err
				}
				blocks = func(l ipld.Link) (ipld.Block, bool) {
					return getBlock(db, l)
				}
			}

			chain, err := kernel.Replay(signer, c, records, blocks)
			if err != nil {
				return err
			}
			logger.Info("replay verified", zap.Int("cycles", len(chain)))
			for _, h := range chain {
				fmt.Println(h.String())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "authority key file")
	cmd.Flags().StringVarP(&carPath, "archive", "a", "", "replay from a CAR archive instead of the data dir")
	cmd.Flags().StringP("constitution", "c", "constitution.json", "constitution file (DAG-JSON)")
	return cmd
}
