// Package apperr tags errors with the abstract kinds the service
// distinguishes when deciding how to propagate a failure: whether it
// aborts an ingestion job, closes a protocol session, or terminates the
// process outright.
package apperr

import "fmt"

// Kind classifies an error for propagation-policy decisions.
type Kind string

const (
	Configuration Kind = "configuration"
	StoreErr      Kind = "store"
	NetworkErr    Kind = "network"
	RateLimited   Kind = "rate_limited"
	NotFound      Kind = "not_found"
	Parsing       Kind = "parsing"
	Tokenizer     Kind = "tokenizer"
	Internal      Kind = "internal"
	Protocol      Kind = "protocol"
)

// Error wraps an underlying cause with a Kind so callers can branch on
// propagation policy without string-matching error messages.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and an operation label describing where it
// occurred. Returns nil if err is nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Of reports the Kind of err, or Internal if err does not carry one.
func Of(err error) Kind {
	var e *Error
	if as(err, &e) {
		return e.Kind
	}
	return Internal
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
