package engine

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures.
type Kind int

const (
	KindUnknown Kind = iota
	// DataInsufficient marks a window too small for statistics. It is reported
	// on EvaluationResult.InsufficientData rather than returned.
	DataInsufficient
	// ChannelFailure marks a failed delivery. It is recorded on the attempt
	// rather than returned.
	ChannelFailure
	// PersistenceFailure aborts an evaluation; nothing was committed or sent.
	PersistenceFailure
	// ConfigurationError covers invalid setup and malformed caller input.
	ConfigurationError
)

func (k Kind) String() string {
	switch k {
	case DataInsufficient:
		return "data_insufficient"
	case ChannelFailure:
		return "channel_failure"
	case PersistenceFailure:
		return "persistence_failure"
	case ConfigurationError:
		return "configuration_error"
	default:
		return "unknown"
	}
}

// Error is returned by Engine operations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

func configErr(op string, err error) error {
	return &Error{Kind: ConfigurationError, Op: op, Err: err}
}

func persistErr(op string, err error) error {
	return &Error{Kind: PersistenceFailure, Op: op, Err: err}
}
