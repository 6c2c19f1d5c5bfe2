package kernel

import (
	"bytes"
	"sort"

	"github.com/macterra/go-authority-kernel/artifact"
	"github.com/macterra/go-authority-kernel/core/ipld"
)

// Gate identifies the pipeline stage that produced a decision. The stage
// sequence within a cycle is fixed; violating it is a kernel defect, not a
// configuration.
type Gate string

// Only decision-producing stages carry a Gate value. Codec rejection happens
// at submission, before any cycle; revalidation and density repair surface as
// ledger events, not decisions.
const (
	GateAmendment  Gate = "amendment"
	GateAdoption   Gate = "adoption"
	GateGrant      Gate = "grant"
	GateRevocation Gate = "revocation"
	GateSovereign  Gate = "sovereign"
	GateDelegated  Gate = "delegated"
)

// Decision is one (artifact, gate, reason) outcome. Reason is empty on
// admission and a stable code on rejection; the pair must be reproducible
// from the same artifact and the same cycle-start state hash.
type Decision struct {
	Artifact artifact.Artifact
	Gate     Gate
	Reason   string
	Admitted bool
}

// orderInputs arranges a cycle's buffered artifacts into topological time:
// grouped by kind in gate order, sorted by CID bytes within a group.
// Arrival order never matters.
func orderInputs(inputs map[string]artifact.Artifact) []artifact.Artifact {
	out := make([]artifact.Artifact, 0, len(inputs))
	for _, a := range inputs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		gi, gj := out[i].Kind().GateOrder(), out[j].Kind().GateOrder()
		if gi != gj {
			return gi < gj
		}
		return bytes.Compare(linkBytes(out[i].Link()), linkBytes(out[j].Link())) < 0
	})
	return out
}

func linkBytes(l ipld.Link) []byte {
	return []byte(l.Binary())
}
