package document

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: ErrorKindOther},
		{name: "not found", err: &NotFoundError{Identifier: "x"}, want: ErrorKindNotFound},
		{name: "exhausted wrapped", err: fmt.Errorf("rotate: %w", ErrMirrorsExhausted), want: ErrorKindNotFound},
		{name: "not found wrapping site access", err: &NotFoundError{Identifier: "x", Err: NewSiteAccessError("u", nil)}, want: ErrorKindNotFound},
		{name: "site access", err: NewSiteAccessError("https://m", errors.New("boom")), want: ErrorKindSiteAccess},
		{name: "captcha", err: NewCaptchaNeededError("https://m"), want: ErrorKindSiteAccess},
		{name: "site access with timeout", err: NewSiteAccessError("https://m", context.DeadlineExceeded), want: ErrorKindSiteAccess},
		{name: "canceled", err: fmt.Errorf("fetch: %w", context.Canceled), want: ErrorKindCanceled},
		{name: "other", err: errors.New("disk full"), want: ErrorKindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestSiteAccessErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := NewSiteAccessError("https://mirror-a/x", cause)
	require.ErrorIs(t, err, ErrSiteAccess)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrCaptchaNeeded)
	assert.Contains(t, err.Error(), "https://mirror-a/x")

	captcha := NewCaptchaNeededError("https://mirror-b/x")
	require.ErrorIs(t, captcha, ErrCaptchaNeeded)
	require.ErrorIs(t, captcha, ErrSiteAccess)
	assert.Contains(t, captcha.Error(), "captcha")

	var sae *SiteAccessError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", captcha), &sae)
	assert.True(t, sae.Captcha)
}

func TestNotFoundError(t *testing.T) {
	t.Parallel()

	err := &NotFoundError{Identifier: "10.1/x", Err: ErrMirrorsExhausted}
	require.ErrorIs(t, err, ErrIdentifierNotFound)
	require.ErrorIs(t, err, ErrMirrorsExhausted)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "10.1/x")
	assert.Equal(t, "not_found", ErrorKindNotFound.String())
}
