package kernel

import (
	"fmt"
	"io"

	"github.com/macterra/go-authority-kernel/artifact"
	"github.com/macterra/go-authority-kernel/audit"
	"github.com/macterra/go-authority-kernel/audit/store"
	"github.com/macterra/go-authority-kernel/constitution"
	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/macterra/go-authority-kernel/core/iterable"
	"github.com/macterra/go-authority-kernel/principal"
)

// BlockSource resolves canonical artifact blocks by link during replay.
type BlockSource func(link ipld.Link) (ipld.Block, bool)

// ReplayDivergenceError is fatal: a logged decision or hash could not be
// reproduced. There is no tolerated divergence; processing halts at the
// first one.
type ReplayDivergenceError struct {
	Cycle   uint64
	Subject string
	Want    string
	Got     string
}

func (e *ReplayDivergenceError) Name() string {
	return "REPLAY_DIVERGENCE"
}

func (e *ReplayDivergenceError) Error() string {
	return fmt.Sprintf("replay divergence at cycle %d: %s: want %s, got %s",
		e.Cycle, e.Subject, e.Want, e.Got)
}

func diverged(cycle uint64, subject, want, got string) *ReplayDivergenceError {
	return &ReplayDivergenceError{Cycle: cycle, Subject: subject, Want: want, Got: got}
}

// Replay rebuilds a fresh kernel from the initial constitution and re-runs
// the logged artifacts cycle by cycle, comparing every decision triple and
// the full state hash chain. The signer must be the original kernel's
// authority signer or warrant ids will not reproduce. Returns the verified
// chain of post-cycle hashes.
func Replay(signer principal.Signer, initial *constitution.Constitution, records iterable.Iterator[*audit.Record], blocks BlockSource) ([]ipld.Link, error) {
	k, err := New(signer, initial)
	if err != nil {
		return nil, err
	}
	return replayInto(k, records, blocks)
}

// Reopen verifies a persisted log by full replay and returns a kernel whose
// state continues it. The store must chain from the initial constitution;
// any divergence between stored and recomputed decisions is fatal. The
// store comes from s, so opts must not carry WithStore.
func Reopen(signer principal.Signer, initial *constitution.Constitution, s store.Store, blocks BlockSource, opts ...Option) (*Kernel, error) {
	persisted, err := audit.NewLog(initial.Hash(), s)
	if err != nil {
		return nil, err
	}
	records, err := persisted.Iterate()
	if err != nil {
		return nil, err
	}
	k, err := New(signer, initial, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := replayInto(k, records, blocks); err != nil {
		return nil, err
	}
	// The replay reproduced the persisted chain record for record, so the
	// kernel can adopt the persisted log as its own and append from here.
	k.log = persisted
	return k, nil
}

func replayInto(k *Kernel, records iterable.Iterator[*audit.Record], blocks BlockSource) ([]ipld.Link, error) {
	var chain []ipld.Link
	for {
		logged, err := records.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		// Feed the cycle's inputs. Adoption decisions cite a proposal that
		// was input in an earlier cycle; they are outcomes, not inputs.
		for _, d := range logged.Decisions() {
			if d.Gate == string(GateAdoption) {
				continue
			}
			blk, ok := blocks(d.Artifact)
			if !ok {
				return nil, fmt.Errorf("cycle %d: no block for artifact %s", logged.Cycle(), d.Artifact)
			}
			a, err := artifact.DecodeBlock(blk)
			if err != nil {
				return nil, fmt.Errorf("cycle %d: decoding artifact %s: %w", logged.Cycle(), d.Artifact, err)
			}
			if _, err := k.SubmitArtifact(a); err != nil {
				return nil, err
			}
		}

		replayed, err := k.RunCycle()
		if err != nil {
			return nil, err
		}
		if err := compare(logged, replayed); err != nil {
			return nil, err
		}
		chain = append(chain, replayed.StateHashEnd())
	}
	return chain, nil
}

func compare(logged, replayed *audit.Record) error {
	cycle := logged.Cycle()
	if replayed.Cycle() != cycle {
		return diverged(cycle, "cycle number",
			fmt.Sprintf("%d", cycle), fmt.Sprintf("%d", replayed.Cycle()))
	}
	if replayed.StateHashStart().String() != logged.StateHashStart().String() {
		return diverged(cycle, "state hash at cycle start",
			logged.StateHashStart().String(), replayed.StateHashStart().String())
	}
	want, got := logged.Decisions(), replayed.Decisions()
	if len(want) != len(got) {
		return diverged(cycle, "decision count",
			fmt.Sprintf("%d", len(want)), fmt.Sprintf("%d", len(got)))
	}
	for i := range want {
		if want[i].Artifact.String() != got[i].Artifact.String() ||
			want[i].Gate != got[i].Gate ||
			want[i].Reason != got[i].Reason ||
			want[i].Admitted != got[i].Admitted {
			return diverged(cycle, fmt.Sprintf("decision %d (%s)", i, want[i].Artifact),
				fmt.Sprintf("(%s, %s, %t)", want[i].Gate, want[i].Reason, want[i].Admitted),
				fmt.Sprintf("(%s, %s, %t)", got[i].Gate, got[i].Reason, got[i].Admitted))
		}
	}
	if replayed.StateHashEnd().String() != logged.StateHashEnd().String() {
		return diverged(cycle, "state hash at cycle end",
			logged.StateHashEnd().String(), replayed.StateHashEnd().String())
	}
	return nil
}
