package s3

import (
	"context"
	"errors"
	"testing"
	"time"

	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPIError struct{ code string }

func (e *fakeAPIError) Error() string      { return "api error: " + e.code }
func (e *fakeAPIError) ErrorCode() string  { return e.code }
func (e *fakeAPIError) ErrorMessage() string { return e.code }
func (e *fakeAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultUnknown }

func TestObjectKey_AppliesPrefix(t *testing.T) {
	t.Parallel()
	s := &Store{keyPrefix: "objects/"}
	assert.Equal(t, "objects/abc", s.objectKey("abc"))

	s2 := &Store{}
	assert.Equal(t, "abc", s2.objectKey("abc"))
}

func TestTrimPrefix_StripsKnownPrefix(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abc", trimPrefix("objects/abc", "objects/"))
	assert.Equal(t, "objects/abc", trimPrefix("objects/abc", ""))
	assert.Equal(t, "abc", trimPrefix("abc", "objects/"))
}

func TestIsRetryable_TrueForTransientCodes(t *testing.T) {
	t.Parallel()
	assert.True(t, isRetryable(&fakeAPIError{code: "SlowDown"}))
	assert.True(t, isRetryable(&fakeAPIError{code: "InternalError"}))
	assert.False(t, isRetryable(&fakeAPIError{code: "NoSuchKey"}))
	assert.False(t, isRetryable(errors.New("plain error")))
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()
	s := &Store{retry: retryConfig{maxRetries: 3, initialBackoff: time.Millisecond, maxBackoff: 10 * time.Millisecond, backoffMultiplier: 2}}

	attempts := 0
	err := s.withRetry(context.Background(), "Put", "key", func() error {
		attempts++
		if attempts < 3 {
			return &fakeAPIError{code: "SlowDown"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_StopsImmediatelyOnNonRetryableError(t *testing.T) {
	t.Parallel()
	s := &Store{retry: retryConfig{maxRetries: 3, initialBackoff: time.Millisecond, maxBackoff: 10 * time.Millisecond, backoffMultiplier: 2}}

	attempts := 0
	err := s.withRetry(context.Background(), "Put", "key", func() error {
		attempts++
		return &fakeAPIError{code: "AccessDenied"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()
	s := &Store{retry: retryConfig{maxRetries: 2, initialBackoff: time.Millisecond, maxBackoff: 5 * time.Millisecond, backoffMultiplier: 2}}

	attempts := 0
	err := s.withRetry(context.Background(), "Put", "key", func() error {
		attempts++
		return &fakeAPIError{code: "SlowDown"}
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial attempt + 2 retries
}

func TestIsNotFound_MatchesNotFoundAndNoSuchKeyCodes(t *testing.T) {
	t.Parallel()
	assert.True(t, isNotFound(&fakeAPIError{code: "NotFound"}))
	assert.True(t, isNotFound(&fakeAPIError{code: "NoSuchKey"}))
	assert.False(t, isNotFound(&fakeAPIError{code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("plain error")))
}
