package schema

import (
	"github.com/macterra/go-authority-kernel/core/result/failure"
)

// Reader validates and converts input into an output value, or explains why
// it cannot with a named failure.
type Reader[I, O any] interface {
	Read(input I) (O, failure.Failure)
}

type reader[I, O any] struct {
	readFunc func(input I) (O, failure.Failure)
}

func (r reader[I, O]) Read(input I) (O, failure.Failure) {
	return r.readFunc(input)
}

type schemaerr struct {
	message string
}

func (se schemaerr) Name() string {
	return "SchemaError"
}

func (se schemaerr) Error() string {
	return se.message
}

func NewSchemaError(message string) failure.Failure {
	return schemaerr{message}
}
