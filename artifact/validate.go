package artifact

import (
	"fmt"

	adm "github.com/macterra/go-authority-kernel/artifact/datamodel"
	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/macterra/go-authority-kernel/core/ipld/codec/cbor"
	"github.com/macterra/go-authority-kernel/core/ipld/hash/sha256"
	"github.com/macterra/go-authority-kernel/core/schema"
)

// canonicalLink accepts only links in the form the kernel itself emits:
// CIDv1, DAG-CBOR, sha2-256. Anything else cannot name a canonical artifact.
var canonicalLink = schema.Link(
	schema.WithVersion(1),
	schema.WithCodec(cbor.Code),
	schema.WithMultihashConfig(schema.WithAlg(sha256.Code)),
)

// validateRefs checks every DID and link an artifact cites. Schema binding
// has already fixed the shape; this fixes the vocabulary of references.
func validateRefs(m *adm.ArtifactModel) error {
	switch {
	case m.Grant != nil:
		return firstErr(
			checkDID("grantor", m.Grant.Grantor),
			checkDID("grantee", m.Grant.Grantee),
		)
	case m.Revocation != nil:
		return firstErr(
			checkDID("revoker", m.Revocation.Revoker),
			checkLink("grant", m.Revocation.Grant),
		)
	case m.Action != nil:
		err := checkDID("issuer", m.Action.Issuer)
		if err == nil && m.Action.Grant != nil {
			err = checkLink("grant", m.Action.Grant)
		}
		return err
	case m.Proposal != nil:
		return firstErr(
			checkDID("proposer", m.Proposal.Proposer),
			checkLink("prior", m.Proposal.Prior),
		)
	case m.Endorsement != nil:
		return firstErr(
			checkDID("endorser", m.Endorsement.Endorser),
			checkLink("proposal", m.Endorsement.Proposal),
		)
	case m.Withdrawal != nil:
		return firstErr(
			checkDID("proposer", m.Withdrawal.Proposer),
			checkLink("proposal", m.Withdrawal.Proposal),
		)
	}
	return nil
}

func checkDID(field, value string) error {
	if _, ferr := schema.DID().Read(value); ferr != nil {
		return fmt.Errorf("%s: %s", field, ferr.Error())
	}
	return nil
}

func checkLink(field string, link ipld.Link) error {
	if link == nil {
		return fmt.Errorf("%s: missing link", field)
	}
	if _, ferr := canonicalLink.Read(link); ferr != nil {
		return fmt.Errorf("%s: %s", field, ferr.Error())
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
