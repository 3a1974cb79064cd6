package transport

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindStatus ErrorKind = iota
	KindTimeout
	KindNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindTimeout:
		return "timeout"
	default:
		return "network"
	}
}

// Error is a failure reaching the remote. Status is set only for KindStatus.
type Error struct {
	Op     string
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsAuth reports whether err is an authentication or permission failure,
// which is fatal to the run rather than to a single item.
func IsAuth(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == KindStatus && (te.Status == 401 || te.Status == 403)
	}
	return false
}

// IsTimeout reports whether err was a request timeout.
func IsTimeout(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == KindTimeout
	}
	return false
}
