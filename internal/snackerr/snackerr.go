// Package snackerr defines the error taxonomy shared by the commit
// pipeline and its HTTP surface. Every fatal error carries a
// machine-readable Kind so the UI can decide between "fix your input",
// "reconnect GitHub" and "retry".
package snackerr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// Validation errors: detected before any network call, user-correctable.
	KindInvalidPath     Kind = "invalid_path"
	KindInvalidEncoding Kind = "invalid_encoding"
	KindFileTooLarge    Kind = "file_too_large"
	KindInvalidFileName Kind = "invalid_file_name"
	KindExtNotAllowed   Kind = "extension_not_allowed"
	KindInvalidRequest  Kind = "invalid_request"

	// Authorization errors: fatal, never retried.
	KindForbidden            Kind = "forbidden"
	KindInstallationNotFound Kind = "installation_not_found"

	// Conflict and provider errors.
	KindBranchConflict Kind = "branch_conflict"
	KindCommitFailed   Kind = "commit_failed"

	// Guest share errors.
	KindUploadLimit  Kind = "upload_limit_reached"
	KindShareExpired Kind = "share_expired"
	KindShareRevoked Kind = "share_revoked"

	KindNotFound Kind = "not_found"
	KindInternal Kind = "internal"
)

// Error is the pipeline's structured error: a kind for machines, a
// message for humans, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal if there is none.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsKind reports whether err's chain contains an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}
