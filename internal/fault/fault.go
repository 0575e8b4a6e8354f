// Package fault classifies pipeline failures so stages can decide whether an
// error ends the run or is only worth a warning.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the failure class of an error.
type Kind string

const (
	// KindTransport covers provider connection, capability and LLM failures.
	KindTransport Kind = "transport"
	// KindSelection means no actionable finding exists. It is not a failure.
	KindSelection Kind = "selection"
	// KindIdentity covers missing identity mappings. Never fatal.
	KindIdentity Kind = "identity"
	// KindIntegration covers review creation, workspace and persistence failures.
	KindIntegration Kind = "integration"
)

// Error wraps an underlying error with its kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transport wraps err as a transport failure. A nil err returns nil.
func Transport(op string, err error) error { return wrap(KindTransport, op, err) }

// Integration wraps err as an integration failure. A nil err returns nil.
func Integration(op string, err error) error { return wrap(KindIntegration, op, err) }

// Identity wraps err as an identity failure. A nil err returns nil.
func Identity(op string, err error) error { return wrap(KindIdentity, op, err) }

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Kind == kind && fe.Op == op {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain.
// Unclassified errors are reported as integration failures.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindIntegration
}

// Fatal reports whether an error of this kind must fail the run.
func (k Kind) Fatal() bool {
	return k == KindTransport || k == KindIntegration
}
