package acquire

import (
	"errors"
	"fmt"

	"github.com/propscout/propscout/internal/captcha"
	"github.com/propscout/propscout/internal/engine"
	"github.com/propscout/propscout/internal/extract"
	"github.com/propscout/propscout/internal/sites"
	"github.com/propscout/propscout/internal/urlcheck"
)

// Code identifies an acquisition failure class.
type Code string

const (
	CodeInvalidURL         Code = "INVALID_URL"
	CodeProtocolNotAllowed Code = "PROTOCOL_NOT_ALLOWED"
	CodeSSRFBlocked        Code = "SSRF_BLOCKED"
	CodeUnsupportedSite    Code = "UNSUPPORTED_SITE"
	CodeChallengeDetected  Code = "CHALLENGE_DETECTED"
	CodeProviderError      Code = "PROVIDER_ERROR"
	CodeSolveTimeout       Code = "SOLVE_TIMEOUT"
	CodeMalformedContent   Code = "MALFORMED_CONTENT"
	CodeExtractionFailed   Code = "EXTRACTION_FAILED"
	CodeFetchFailed        Code = "FETCH_FAILED"
)

// Error is an acquisition failure with its classification code. The
// underlying error keeps the full cause chain for errors.Is checks.
type Error struct {
	Code       Code
	Message    string
	Suggestion string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Underlying }

func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// CodeOf returns the classification code of an acquisition error, or ""
// for errors that did not come from the pipeline.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// classify maps a pipeline error onto its code.
func classify(err error) Code {
	switch {
	case errors.Is(err, urlcheck.ErrProtocolNotAllowed):
		return CodeProtocolNotAllowed
	case errors.Is(err, urlcheck.ErrSSRFBlocked):
		return CodeSSRFBlocked
	case errors.Is(err, urlcheck.ErrInvalidURL):
		return CodeInvalidURL
	case errors.Is(err, sites.ErrUnsupportedSite):
		return CodeUnsupportedSite
	case errors.Is(err, captcha.ErrSolveTimeout):
		return CodeSolveTimeout
	case errors.Is(err, captcha.ErrProvider), errors.Is(err, captcha.ErrNoProviders):
		return CodeProviderError
	case errors.Is(err, engine.ErrChallengeDetected):
		return CodeChallengeDetected
	case errors.Is(err, extract.ErrMalformedContent):
		return CodeMalformedContent
	default:
		return CodeFetchFailed
	}
}

// wrap attaches the classification code to a pipeline error.
func wrap(message string, err error) *Error {
	return &Error{
		Code:       classify(err),
		Message:    message,
		Underlying: err,
	}
}
