package failure

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
)

// Named is an error that you can read a name from.
type Named interface {
	Name() string
}

// WithStackTrace is an error that you can read a stack trace from.
type WithStackTrace interface {
	Stack() string
}

// Failure is a named error. Every kernel gate rejection satisfies this so the
// audit log can record a stable name alongside the human message.
type Failure interface {
	error
	Named
}

type NamedWithStackTrace interface {
	Named
	WithStackTrace
}

type namedWithStackTrace struct {
	name  string
	stack errors.StackTrace
}

func (n namedWithStackTrace) Name() string {
	return n.name
}

func (n namedWithStackTrace) Stack() string {
	return fmt.Sprintf("%+v", n.stack)
}

func NamedWithCurrentStackTrace(name string) NamedWithStackTrace {
	const depth = 32

	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	f := make(errors.StackTrace, n)
	for i := 0; i < n; i++ {
		f[i] = errors.Frame(pcs[i])
	}

	return namedWithStackTrace{name, f}
}

type failure struct {
	name    string
	message string
}

func (f failure) Name() string {
	return f.name
}

func (f failure) Error() string {
	return f.message
}

// New creates a simple named failure.
func New(name string, message string) Failure {
	return failure{name, message}
}

// FromError adapts any error into a Failure, preserving the name when the
// error carries one.
func FromError(err error) Failure {
	name := "Error"
	if named, ok := err.(Named); ok {
		name = named.Name()
	}
	return failure{name, err.Error()}
}
