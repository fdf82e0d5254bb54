package domain

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the scraper can observe.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidParameter
	KindEntityNotFound
	KindStaleProtocolState
	KindPortalThrottled
	KindPortalUnavailable
	KindContentExtractionFailed
	KindMarkupMismatch
	KindContractViolation
	KindStorageConflict
	KindStorageIntegrityViolation
)

var kindNames = [...]string{
	KindUnknown:                   "internal_error",
	KindInvalidParameter:          "invalid_parameter",
	KindEntityNotFound:            "entity_not_found",
	KindStaleProtocolState:        "stale_protocol_state",
	KindPortalThrottled:           "portal_throttled",
	KindPortalUnavailable:         "portal_unavailable",
	KindContentExtractionFailed:   "content_extraction_failed",
	KindMarkupMismatch:            "markup_mismatch",
	KindContractViolation:         "contract_violation",
	KindStorageConflict:           "storage_conflict",
	KindStorageIntegrityViolation: "storage_integrity_violation",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// AbortsJob reports whether an error of this kind ends the whole job. Row-level
// kinds are recorded against one identity and the job moves on.
func (k Kind) AbortsJob() bool {
	switch k {
	case KindContentExtractionFailed, KindStorageConflict, KindStorageIntegrityViolation:
		return false
	default:
		return true
	}
}

// Retryable reports whether re-submitting the work may succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindStaleProtocolState, KindPortalThrottled, KindPortalUnavailable, KindContentExtractionFailed:
		return true
	default:
		return false
	}
}

// Error is a classified scraper error. Msg is our own description; Err keeps the
// underlying cause for logs and is never copied into status messages.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return e.Kind.String() + ": " + e.Msg
	case e.Msg == "":
		return e.Kind.String() + ": " + e.Err.Error()
	default:
		return e.Kind.String() + ": " + e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below, so errors.Is(err, ErrPortalThrottled)
// holds for any throttling error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrInvalidParameter          = &Error{Kind: KindInvalidParameter}
	ErrEntityNotFound            = &Error{Kind: KindEntityNotFound}
	ErrStaleProtocolState        = &Error{Kind: KindStaleProtocolState}
	ErrPortalThrottled           = &Error{Kind: KindPortalThrottled}
	ErrPortalUnavailable         = &Error{Kind: KindPortalUnavailable}
	ErrContentExtractionFailed   = &Error{Kind: KindContentExtractionFailed}
	ErrMarkupMismatch            = &Error{Kind: KindMarkupMismatch}
	ErrContractViolation         = &Error{Kind: KindContractViolation}
	ErrStorageConflict           = &Error{Kind: KindStorageConflict}
	ErrStorageIntegrityViolation = &Error{Kind: KindStorageIntegrityViolation}
)

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind with a message.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Summarize renders err for a status message: the kind plus our own description,
// without the raw cause. Unclassified errors collapse to their kind name.
func Summarize(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return KindUnknown.String()
	}
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}
