package kernel

import (
	"fmt"

	"github.com/ipld/go-ipld-prime/node/basicnode"
	adm "github.com/macterra/go-authority-kernel/artifact/datamodel"
	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/ucan-wg/go-ucan/capability/policy"
	"github.com/ucan-wg/go-ucan/capability/policy/literal"
	"github.com/ucan-wg/go-ucan/capability/policy/selector"
)

// matchPolicy structurally matches an action's parameters against a grant's
// policy statements. The kernel never interprets parameter values; it only
// compares them under the closed operator set.
func matchPolicy(statements []adm.PolicyStatementModel, params []adm.ParamModel) (bool, error) {
	if len(statements) == 0 {
		return true, nil
	}
	stmts := make(policy.Policy, 0, len(statements))
	for _, st := range statements {
		sel, err := selector.Parse(st.Selector)
		if err != nil {
			return false, fmt.Errorf("parsing selector %q: %w", st.Selector, err)
		}
		switch st.Op {
		case "==":
			stmts = append(stmts, policy.Equal(sel, literal.String(st.Value)))
		default:
			return false, fmt.Errorf("unsupported policy operator %q", st.Op)
		}
	}
	node, err := paramsNode(params)
	if err != nil {
		return false, err
	}
	return policy.Match(stmts, node), nil
}

func paramsNode(params []adm.ParamModel) (ipld.Node, error) {
	nb := basicnode.Prototype.Map.NewBuilder()
	ma, err := nb.BeginMap(int64(len(params)))
	if err != nil {
		return nil, err
	}
	for _, p := range params {
		if err := ma.AssembleKey().AssignString(p.Key); err != nil {
			return nil, err
		}
		if err := ma.AssembleValue().AssignString(p.Value); err != nil {
			return nil, err
		}
	}
	if err := ma.Finish(); err != nil {
		return nil, err
	}
	return nb.Build(), nil
}
