package channels

import (
	"errors"
	"fmt"
)

// Define static errors
var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrScopeNotFound   = errors.New("data scope not found")
	ErrTagConflict     = errors.New("tag conflict")
	ErrInvalidOrigin   = errors.New("invalid channel origin")
	ErrInvalidRef      = errors.New("invalid channel reference")
)

// NotFoundError reports a channel with no exact, case-sensitive catalog match.
type NotFoundError struct {
	Ref ChannelRef
	// Suggestions lists catalog names that differ only by case. They are never used for matching.
	Suggestions []string
	Err         error
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("channel %q not found on %s %s", e.Ref.Name, e.Ref.Origin, e.Ref.OriginID)
	if e.Ref.Scope != "" {
		msg += fmt.Sprintf(" in scope %q", e.Ref.Scope)
	}
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestions)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Is matches ErrChannelNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrChannelNotFound
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// TagConflictError reports an explicit tag that disagrees with the scope default under the
// strict merge policy.
type TagConflictError struct {
	Channel  string
	Key      string
	Default  string
	Explicit string
}

func (e *TagConflictError) Error() string {
	return fmt.Sprintf("tag conflict on channel %q: key %q has scope default %q but %q was given",
		e.Channel, e.Key, e.Default, e.Explicit)
}

// Is matches ErrTagConflict.
func (e *TagConflictError) Is(target error) bool {
	return target == ErrTagConflict
}
