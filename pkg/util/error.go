package util

import (
	"github.com/pingcap/errors"
)

// ErrKind classifies errors that callers handle differently.
type ErrKind int

const (
	KindUnknown ErrKind = iota
	// KindConnection means a database could not be reached.
	KindConnection
	// KindMissingExternalTool means a collaborator binary is not in PATH.
	KindMissingExternalTool
	// KindSubprocessFailure means a collaborator exited with an unexpected code.
	KindSubprocessFailure
	// KindSchemaResolution means a snapshot object does not exist on the target.
	KindSchemaResolution
	// KindMalformedSnapshot means the statistics document can't be replayed.
	KindMalformedSnapshot
	// KindBestEffort marks failures that are logged and then ignored.
	KindBestEffort
)

func (k ErrKind) String() string {
	switch k {
	case KindConnection:
		return "ConnectionError"
	case KindMissingExternalTool:
		return "MissingExternalTool"
	case KindSubprocessFailure:
		return "SubprocessFailure"
	case KindSchemaResolution:
		return "SchemaResolutionFailure"
	case KindMalformedSnapshot:
		return "MalformedSnapshot"
	case KindBestEffort:
		return "BestEffortFailure"
	}
	return "Unknown"
}

type kindErr interface {
	kind() ErrKind
}

type kindWrapper struct {
	error
	k ErrKind
}

func (w kindWrapper) kind() ErrKind { return w.k }

func (w kindWrapper) Unwrap() error { return w.error }

// WrapKind attaches kind to err. It returns nil for a nil err.
func WrapKind(kind ErrKind, err error) error {
	if err == nil {
		return nil
	}
	return kindWrapper{error: err, k: kind}
}

// KindOf returns the outermost kind attached by WrapKind. It supports
// pingcap/errors package.
func KindOf(err error) ErrKind {
	for err != nil {
		if k, ok := err.(kindErr); ok {
			return k.kind()
		}
		err = errors.Unwrap(err)
	}
	return KindUnknown
}

// IsKind checks if err is wrapped by WrapKind with the given kind.
func IsKind(err error, kind ErrKind) bool {
	return KindOf(err) == kind
}
