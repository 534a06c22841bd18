// Package errors defines the structured error taxonomy shared by every
// component that can fail in a way a caller or end user needs to react to.
package errors

import "fmt"

// Kind classifies a failure for both surfacing and retry decisions. Every
// component that returns an error a workflow must react to returns (or
// wraps) one of these kinds rather than an ad-hoc error string.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindSourceUnavailable   Kind = "source_unavailable"
	KindQueueFull           Kind = "queue_full"
	KindConfigError         Kind = "config_error"
	KindLLMTransient        Kind = "llm_transient"
	KindLLMFatal            Kind = "llm_fatal"
	KindOutlineParseError   Kind = "outline_parse_error"
	KindChapterCountExceeded Kind = "chapter_count_exceeded"
	KindTimeout             Kind = "timeout"
	KindUnknown             Kind = "unknown"
)

// Retryable reports whether LLMClient should retry a failure of this kind.
// Only transient transport/timeout failures are retried; everything else
// (auth, quota, malformed input) fails fast.
func (k Kind) Retryable() bool {
	return k == KindLLMTransient
}

// Surfaced reports whether this kind is meant to reach the end user, as
// opposed to staying internal to a retry loop.
func (k Kind) Surfaced() bool {
	return k != KindLLMTransient
}

// Structured is the error type every user-visible failure in this module
// takes the shape of: a classification, a short human message, and
// actionable suggestions, with the underlying cause preserved for logs.
type Structured struct {
	Kind        Kind
	Message     string
	Suggestions []string
	Cause       error
}

func (e *Structured) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Structured) Unwrap() error {
	return e.Cause
}

// New builds a Structured error with no suggestions and no cause.
func New(kind Kind, message string) *Structured {
	return &Structured{Kind: kind, Message: message}
}

// Wrap builds a Structured error around an existing cause.
func Wrap(kind Kind, message string, cause error) *Structured {
	return &Structured{Kind: kind, Message: message, Cause: cause}
}

// WithSuggestions returns a copy of e with Suggestions set, so callers can
// chain it onto New/Wrap without a separate variable.
func (e *Structured) WithSuggestions(suggestions ...string) *Structured {
	return &Structured{
		Kind:        e.Kind,
		Message:     e.Message,
		Suggestions: suggestions,
		Cause:       e.Cause,
	}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Structured,
// otherwise returns KindUnknown.
func KindOf(err error) Kind {
	var s *Structured
	if As(err, &s) {
		return s.Kind
	}
	return KindUnknown
}

// As is a small local alias of errors.As so this package's callers don't
// need a second import for the common case of extracting a *Structured.
func As(err error, target **Structured) bool {
	for err != nil {
		if s, ok := err.(*Structured); ok {
			*target = s
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
