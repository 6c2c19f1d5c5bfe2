package schema

import (
	"github.com/macterra/go-authority-kernel/core/result/failure"
	"github.com/macterra/go-authority-kernel/did"
)

var didreader = reader[string, did.DID]{
	readFunc: func(input string) (did.DID, failure.Failure) {
		d, err := did.Parse(input)
		if err != nil {
			return did.Undef, NewSchemaError(err.Error())
		}
		return d, nil
	},
}

func DID() Reader[string, did.DID] {
	return didreader
}
