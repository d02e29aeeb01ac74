// Package errors defines the typed error taxonomy propagated by the Media
// Toolkit, Media Fetcher, Transcription Engine, and Translator (§7 of the
// specification), plus the TaskError the Pipeline Coordinator surfaces to
// observers. Components return a *TypedError directly; the coordinator
// classifies and wraps it into a TaskError at the task boundary.
package errors

import (
	"errors"
	"fmt"
)

// Kind enumerates the closed set of error classifications named in §7.
type Kind string

const (
	InvalidInput          Kind = "INVALID_INPUT"
	UnsupportedURL        Kind = "UNSUPPORTED_URL"
	BotChallenge          Kind = "BOT_CHALLENGE"
	GeoBlock              Kind = "GEO_BLOCK"
	NotFound              Kind = "NOT_FOUND"
	Network               Kind = "NETWORK"
	AudioDecodeFailed     Kind = "AUDIO_DECODE_FAILED"
	ModelLoadFailed       Kind = "MODEL_LOAD_FAILED"
	BackendTimeout        Kind = "BACKEND_TIMEOUT"
	BackendUnavailable    Kind = "BACKEND_UNAVAILABLE"
	TranslationIncomplete Kind = "TRANSLATION_INCOMPLETE"
	TranscodeFailed       Kind = "TRANSCODE_FAILED"
	TranscodeTimeout      Kind = "TRANSCODE_TIMEOUT"
	StageTimeout          Kind = "STAGE_TIMEOUT"
	PromptTooLong         Kind = "PROMPT_TOO_LONG"
	Cancelled             Kind = "CANCELLED"
	Internal              Kind = "INTERNAL"
)

// TypedError is the error type every component-level failure (MT, MF, TE,
// TR) is expressed as. It carries enough information for the Pipeline
// Coordinator to build a TaskError without re-classifying string messages.
type TypedError struct {
	Kind        Kind
	Msg         string
	Cause       error
	Recoverable bool
	RetryAfter  int64 // ms, optional hint for transient errors
	// Missing carries the batch indices still absent after retry, only set
	// for TranslationIncomplete.
	Missing []int
}

func (e *TypedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *TypedError) Unwrap() error { return e.Cause }

// New builds a TypedError. Recoverable defaults to false: components
// should only mark an error recoverable when the coordinator's retry loop
// already exhausted its attempts and is reporting the absorption, never on
// the first raise.
func New(kind Kind, msg string, cause error) *TypedError {
	return &TypedError{Kind: kind, Msg: msg, Cause: cause}
}

func Newf(kind Kind, cause error, format string, args ...interface{}) *TypedError {
	return New(kind, fmt.Sprintf(format, args...), cause)
}

// WithMissing attaches the still-missing batch indices to a
// TranslationIncomplete error, per §4.1's retry protocol.
func (e *TypedError) WithMissing(missing []int) *TypedError {
	e.Missing = missing
	return e
}

// As reports whether err (or something it wraps) is a *TypedError and, if
// so, returns it.
func As(err error) (*TypedError, bool) {
	var te *TypedError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is a *TypedError, or Internal
// otherwise — used when the coordinator must classify an opaque error
// (e.g. a panic recovered into an error) into the TaskError taxonomy.
func KindOf(err error) Kind {
	if te, ok := As(err); ok {
		return te.Kind
	}
	return Internal
}

// IsCancelled reports whether err represents task cancellation. Per §7,
// CANCELLED must never be surfaced as Failed.
func IsCancelled(err error) bool {
	return KindOf(err) == Cancelled
}

// TaskError is the terminal, user-facing failure attached to a Task
// Record (§3). UserFacingMessage is locale-agnostic prose; Detail carries
// the full internal error for logs/debugging.
type TaskError struct {
	Kind              Kind   `json:"kind"`
	UserFacingMessage string `json:"user_facing_message"`
	Detail            string `json:"detail"`
	Recoverable       bool   `json:"recoverable"`
	RetryAfterMs      int64  `json:"retry_after_ms,omitempty"`
	Missing           []int  `json:"missing,omitempty"`
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.UserFacingMessage)
}

// userFacingMessages gives a stable, non-leaky message per Kind. Transient
// error detail never reaches this table (§7: "Transient errors never leak
// to users directly").
var userFacingMessages = map[Kind]string{
	InvalidInput:          "the request was invalid",
	UnsupportedURL:        "this URL is not supported",
	BotChallenge:          "the source blocked automated access; please upload the file directly instead",
	GeoBlock:              "the source is not available in this region",
	NotFound:              "the requested media could not be found",
	Network:               "a network error interrupted processing",
	AudioDecodeFailed:     "the audio track could not be decoded",
	ModelLoadFailed:       "the transcription model failed to load",
	BackendTimeout:        "a backend service timed out",
	BackendUnavailable:    "a backend service is currently unavailable",
	TranslationIncomplete: "translation did not complete for all segments",
	TranscodeFailed:       "media processing failed",
	TranscodeTimeout:      "media processing timed out",
	StageTimeout:          "a processing stage exceeded its time limit",
	PromptTooLong:         "the summary prompt is too long",
	Cancelled:             "the task was cancelled",
	Internal:              "an internal error occurred",
}

// ToTaskError maps a component TypedError (or any error) to the TaskError
// exposed on a Task Record, per §7's propagation rule.
func ToTaskError(err error) *TaskError {
	if err == nil {
		return nil
	}
	te, ok := As(err)
	if !ok {
		return &TaskError{
			Kind:              Internal,
			UserFacingMessage: userFacingMessages[Internal],
			Detail:            err.Error(),
			Recoverable:       false,
		}
	}
	msg, ok := userFacingMessages[te.Kind]
	if !ok {
		msg = userFacingMessages[Internal]
	}
	return &TaskError{
		Kind:              te.Kind,
		UserFacingMessage: msg,
		Detail:            te.Error(),
		Recoverable:       te.Recoverable,
		RetryAfterMs:      te.RetryAfter,
		Missing:           te.Missing,
	}
}

// IsRetriable reports whether err should be retried by a backoff loop. It
// is true only for a *TypedError of kind Network, BackendTimeout, or
// BackendUnavailable (the kinds the provider classifiers map HTTP
// 408/429/5xx responses to); untyped errors are never retriable.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	te, ok := As(err)
	if !ok {
		return false
	}
	switch te.Kind {
	case Network, BackendTimeout, BackendUnavailable:
		return true
	default:
		return false
	}
}
