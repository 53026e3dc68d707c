package engine

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/time/rate"

	"github.com/disputekit/disputekit/internal/core"
)

// Submitter makes a single persistence attempt per call and classifies the
// outcome. Retrying is the caller's decision.
type Submitter struct {
	Repo DisputeRepository
	// Limiter throttles writes to the repository. Nil means unthrottled.
	Limiter *rate.Limiter
}

// NewSubmitter builds a submitter. perSecond <= 0 disables throttling.
func NewSubmitter(repo DisputeRepository, perSecond float64) *Submitter {
	s := &Submitter{Repo: repo}
	if perSecond > 0 {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		s.Limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return s
}

// Submit persists req. Errors are always one of ValidationRejectedError,
// TransientUnavailableError or DuplicateDetectedError.
func (s *Submitter) Submit(ctx context.Context, req core.DisputeRequest) (*core.Dispute, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if s == nil || s.Repo == nil {
		return nil, &core.TransientUnavailableError{Err: errors.New("dispute repository not configured")}
	}

	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, &core.TransientUnavailableError{Err: err}
		}
	}

	dispute, err := s.Repo.CreateDispute(ctx, req)
	if err != nil {
		return nil, classify(err)
	}
	if dispute == nil {
		return nil, &core.TransientUnavailableError{Err: errors.New("repository returned no dispute")}
	}
	return dispute, nil
}

func validateRequest(req core.DisputeRequest) error {
	switch {
	case strings.TrimSpace(req.ClientID) == "":
		return &core.ValidationRejectedError{Field: "client_id", Reason: "is required"}
	case strings.TrimSpace(req.TemplateID) == "":
		return &core.ValidationRejectedError{Field: "template_id", Reason: "is required"}
	case !req.Bureau.Known():
		return &core.ValidationRejectedError{Field: "bureau", Reason: "must be experian, equifax or transunion"}
	case strings.TrimSpace(req.LetterContent) == "":
		return &core.ValidationRejectedError{Field: "letter_content", Reason: "is required"}
	}
	return nil
}

// classify maps repository errors onto the submission taxonomy. Unknown
// errors are retried only when they are timeouts.
func classify(err error) error {
	var (
		vre *core.ValidationRejectedError
		tue *core.TransientUnavailableError
		dde *core.DuplicateDetectedError
	)
	switch {
	case errors.As(err, &dde):
		return dde
	case errors.As(err, &vre):
		return vre
	case errors.As(err, &tue):
		return tue
	case errors.Is(err, context.DeadlineExceeded):
		return &core.TransientUnavailableError{Err: err}
	default:
		return &core.ValidationRejectedError{Reason: err.Error()}
	}
}
