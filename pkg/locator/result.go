package locator

import (
	"errors"
	"fmt"
)

// Kind is the outcome of probing one candidate.
type Kind int

const (
	// NotFound: not a boot source (no filesystem, or no boot image on it).
	NotFound Kind = iota
	// Loaded: the boot image was loaded, Bytes holds its size.
	Loaded
	// Listed: the filesystem was mounted and its root listed.
	Listed
	// Failed: see Err for the reason.
	Failed
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not-found"
	case Loaded:
		return "loaded"
	case Listed:
		return "listed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reason classifies a Failed result.
type Reason int

const (
	// DirAccess: mounted, but the root directory could not be opened.
	DirAccess Reason = iota + 1
	// Load: a boot image was found but loading it failed.
	Load
	// Path: the image path did not fit the path buffer.
	Path
)

func (r Reason) String() string {
	switch r {
	case DirAccess:
		return "directory access"
	case Load:
		return "load"
	case Path:
		return "path"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Error is the error of a Failed result. It unwraps to the provider error.
type Error struct {
	Reason    Reason
	Candidate string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s failure: %v", e.Candidate, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result is the outcome of Load or List. A zero-byte image is Loaded with
// Bytes == 0, which is not a failure.
type Result struct {
	Kind  Kind
	Bytes int
	Err   error
}

func notFound() Result {
	return Result{Kind: NotFound}
}

func loaded(n int) Result {
	return Result{Kind: Loaded, Bytes: n}
}

func listed() Result {
	return Result{Kind: Listed}
}

func failed(reason Reason, candidate string, err error) Result {
	return Result{Kind: Failed, Err: &Error{Reason: reason, Candidate: candidate, Err: err}}
}

// Reason returns the failure reason, or 0 if r did not fail.
func (r Result) Reason() Reason {
	var e *Error
	if r.Kind == Failed && errors.As(r.Err, &e) {
		return e.Reason
	}
	return 0
}

func (r Result) String() string {
	switch r.Kind {
	case Loaded:
		return fmt.Sprintf("loaded %d bytes", r.Bytes)
	case Failed:
		return fmt.Sprintf("failed: %v", r.Err)
	default:
		return r.Kind.String()
	}
}
