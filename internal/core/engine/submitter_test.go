package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/disputekit/disputekit/internal/core"
)

func validRequest() core.DisputeRequest {
	return core.DisputeRequest{
		ClientID:      "c1",
		TemplateID:    "tpl-1",
		Bureau:        core.BureauEquifax,
		LetterContent: "letter",
	}
}

func TestSubmitterCreatesDispute(t *testing.T) {
	repo := newFakeRepo()
	s := NewSubmitter(repo, 0)

	dispute, err := s.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, "d-c1-equifax", dispute.ID)
	require.Nil(t, s.Limiter)
}

func TestSubmitterValidatesLocally(t *testing.T) {
	repo := newFakeRepo()
	s := NewSubmitter(repo, 0)

	req := validRequest()
	req.Bureau = "innovis"
	_, err := s.Submit(context.Background(), req)
	var vre *core.ValidationRejectedError
	require.True(t, errors.As(err, &vre))
	require.Equal(t, "bureau", vre.Field)

	req = validRequest()
	req.LetterContent = "  "
	_, err = s.Submit(context.Background(), req)
	require.Equal(t, core.CodeValidationRejected, core.ErrorCode(err))
	require.Zero(t, repo.requestCount())
}

func TestSubmitterClassifiesErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"rejected", &core.ValidationRejectedError{Reason: "bad"}, core.CodeValidationRejected},
		{"transient", &core.TransientUnavailableError{Err: errors.New("503")}, core.CodeTransientUnavailable},
		{"duplicate", &core.DuplicateDetectedError{ExistingID: "d9"}, core.CodeDuplicateDetected},
		{"wrapped duplicate", fmt.Errorf("insert: %w", &core.DuplicateDetectedError{ExistingID: "d9"}), core.CodeDuplicateDetected},
		{"timeout", fmt.Errorf("query: %w", context.DeadlineExceeded), core.CodeTransientUnavailable},
		{"unknown", errors.New("constraint failed"), core.CodeValidationRejected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeRepo()
			repo.behave = func(core.DisputeRequest, int) error { return tc.err }
			_, err := NewSubmitter(repo, 0).Submit(context.Background(), validRequest())
			require.Equal(t, tc.code, core.ErrorCode(err))
		})
	}
}

func TestSubmitterNilRepository(t *testing.T) {
	_, err := (&Submitter{}).Submit(context.Background(), validRequest())
	require.True(t, core.IsTransient(err))
}

func TestSubmitterThrottles(t *testing.T) {
	repo := newFakeRepo()
	s := NewSubmitter(repo, 0.5)
	require.NotNil(t, s.Limiter)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Submit(ctx, validRequest())
	require.NoError(t, err)

	_, err = s.Submit(ctx, validRequest())
	require.True(t, core.IsTransient(err))
	require.Equal(t, 1, repo.requestCount())
}

func TestRetryWithBackoff(t *testing.T) {
	calls := 0
	res := RetryWithBackoff(context.Background(), testRetry(), core.IsTransient, func(context.Context) error {
		calls++
		if calls < 3 {
			return &core.TransientUnavailableError{}
		}
		return nil
	})
	require.Equal(t, 3, res.Attempts)
	require.NoError(t, res.LastErr)

	calls = 0
	res = RetryWithBackoff(context.Background(), testRetry(), core.IsTransient, func(context.Context) error {
		calls++
		return &core.ValidationRejectedError{Reason: "no"}
	})
	require.Equal(t, 1, res.Attempts)
	require.Error(t, res.LastErr)

	res = RetryWithBackoff(context.Background(), RetryConfig{}, nil, func(context.Context) error {
		return errors.New("always")
	})
	require.Equal(t, 1, res.Attempts)
}

func TestRetryStopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour, BackoffMultiply: 2}

	res := RetryWithBackoff(ctx, cfg, nil, func(context.Context) error {
		cancel()
		return errors.New("fail")
	})
	require.Equal(t, 1, res.Attempts)
	require.EqualError(t, res.LastErr, "fail")
}
