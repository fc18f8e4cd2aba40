// Package social holds the decision and error types shared by the contact,
// messaging, reveal, block and friend services.
package social

import (
	"errors"
	"strings"
)

// Rejection codes carried by Decision and RejectedError.
const (
	CodeNoCharacter      = "no_character"
	CodeSelf             = "self"
	CodeBlocked          = "blocked"
	CodeRateLimited      = "rate_limited"
	CodeCooldown         = "cooldown"
	CodeDuplicate        = "duplicate"
	CodeNotUnlocked      = "not_unlocked"
	CodeAlreadyFriends   = "already_friends"
	CodeAlreadyRequested = "already_requested"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("not allowed to act on this item")
	ErrNotPending = errors.New("already handled")
)

// Decision is the outcome of a gate check. Expected policy outcomes are
// decisions, never errors.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Allow is the positive decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a negative decision.
func Deny(code, reason string) Decision {
	return Decision{Code: code, Reason: reason}
}

// Err converts a negative decision to a *RejectedError; nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &RejectedError{Code: d.Code, Reason: d.Reason}
}

// RejectedError is a policy rejection. It is recoverable by the user.
type RejectedError struct {
	Code   string
	Reason string
}

func (e *RejectedError) Error() string { return e.Reason }

// Reject builds a *RejectedError.
func Reject(code, reason string) error {
	return &RejectedError{Code: code, Reason: reason}
}

// ValidationError lists every content rule the input violated.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string { return strings.Join(e.Reasons, "; ") }

// AsRejected unwraps err into a *RejectedError.
func AsRejected(err error) (*RejectedError, bool) {
	var r *RejectedError
	ok := errors.As(err, &r)
	return r, ok
}

// AsValidation unwraps err into a *ValidationError.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	ok := errors.As(err, &v)
	return v, ok
}
