package document

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrIdentifierNotFound marks a resolution that cannot succeed on retry.
	ErrIdentifierNotFound = errors.New("identifier not found")
	// ErrMirrorsExhausted is returned once the last mirror has been rotated out.
	ErrMirrorsExhausted = errors.New("mirrors exhausted")
	// ErrSiteAccess marks a single failed mirror attempt.
	ErrSiteAccess = errors.New("site access failed")
	// ErrCaptchaNeeded marks a mirror that answered with a captcha challenge.
	ErrCaptchaNeeded = errors.New("captcha needed")
	// ErrUnexpectedContentType marks content that is not the expected document type.
	ErrUnexpectedContentType = errors.New("unexpected content type")
	// ErrNoLink marks a mirror page without an extractable content link.
	ErrNoLink = errors.New("no content link found")
)

// NotFoundError reports that an identifier could not be resolved to content.
type NotFoundError struct {
	Identifier string
	Err        error
}

func (e *NotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrIdentifierNotFound, e.Identifier)
	}
	return fmt.Sprintf("%s: %s: %v", ErrIdentifierNotFound, e.Identifier, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *NotFoundError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrIdentifierNotFound}
	}
	return []error{ErrIdentifierNotFound, e.Err}
}

// SiteAccessError reports a failed attempt against one mirror or content URL.
type SiteAccessError struct {
	URL     string
	Captcha bool
	Err     error
}

func (e *SiteAccessError) Error() string {
	reason := "site access failed"
	if e.Captcha {
		reason = "captcha needed"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", reason, e.URL)
	}
	return fmt.Sprintf("%s: %s: %v", reason, e.URL, e.Err)
}

// Unwrap exposes ErrSiteAccess, ErrCaptchaNeeded when applicable, and the cause.
func (e *SiteAccessError) Unwrap() []error {
	errs := []error{ErrSiteAccess}
	if e.Captcha {
		errs = append(errs, ErrCaptchaNeeded)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewSiteAccessError wraps err as a mirror failure for url.
func NewSiteAccessError(url string, err error) *SiteAccessError {
	return &SiteAccessError{URL: url, Err: err}
}

// NewCaptchaNeededError reports a captcha challenge served by url.
func NewCaptchaNeededError(url string) *SiteAccessError {
	return &SiteAccessError{URL: url, Captcha: true}
}

// ErrorKind buckets errors for retry decisions.
type ErrorKind int

// Error kinds.
const (
	ErrorKindOther ErrorKind = iota
	ErrorKindNotFound
	ErrorKindSiteAccess
	ErrorKindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNotFound:
		return "not_found"
	case ErrorKindSiteAccess:
		return "site_access"
	case ErrorKindCanceled:
		return "canceled"
	default:
		return "other"
	}
}

// KindOf classifies err. Not-found and exhaustion take precedence so that a
// wrapped exhaustion is never retried; a site access error that wraps a
// per-request timeout stays a site access error.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindOther
	case errors.Is(err, ErrIdentifierNotFound), errors.Is(err, ErrMirrorsExhausted):
		return ErrorKindNotFound
	case errors.Is(err, ErrSiteAccess):
		return ErrorKindSiteAccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindCanceled
	default:
		return ErrorKindOther
	}
}

// IsNotFound reports whether err is terminal for a resolution.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrorKindNotFound
}
