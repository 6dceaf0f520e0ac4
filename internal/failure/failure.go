// Package failure holds the error taxonomy shared by the ingestion pipeline
// and the bounded retry helper used at the upload retry points.
package failure

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	Internal Kind = iota
	NoIdentifierFound
	ShortLinkResolutionFailed
	AuthFailed
	SearchDegraded
	UploadFailed
	RecordCreateFailed
	DownloadFailed
)

var kindNames = map[Kind]string{
	Internal:                  "Internal",
	NoIdentifierFound:         "NoIdentifierFound",
	ShortLinkResolutionFailed: "ShortLinkResolutionFailed",
	AuthFailed:                "AuthFailed",
	SearchDegraded:            "SearchDegraded",
	UploadFailed:              "UploadFailed",
	RecordCreateFailed:        "RecordCreateFailed",
	DownloadFailed:            "DownloadFailed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a classified pipeline error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match for any *Error of the same kind, so
// errors.Is(err, &Error{Kind: UploadFailed}) works on wrapped chains.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in the chain, or Internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// IsFatal reports whether err should stop a whole batch rather than a
// single item.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case AuthFailed, Internal:
		return true
	}
	return false
}
