package fetch

import (
	"errors"
	"fmt"
)

// Kind classifies why a run failed.
type Kind int

const (
	KindUnclassified Kind = iota
	KindNetwork
	KindDecompression
	KindMalformedPayload
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "NetworkFailure"
	case KindDecompression:
		return "DecompressionFailure"
	case KindMalformedPayload:
		return "MalformedPayload"
	default:
		return "UnclassifiedFailure"
	}
}

var (
	ErrNetwork          = errors.New("network failure")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnclassified     = errors.New("unclassified failure")
)

// Error is returned by FetchAndSave. Stage names the step that failed
// ("request", "fallback request", "parse", "save").
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrMalformedPayload:
		return e.Kind == KindMalformedPayload
	case ErrUnclassified:
		return e.Kind == KindUnclassified
	}
	return false
}

// KindOf reports the kind of err, or KindUnclassified when err was not
// produced by this package.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnclassified
}

func newError(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}
