package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"triage-platform/internal/queue"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrInvalidPayload = errors.New("reports: invalid payload")
	ErrInvalidRequest = errors.New("reports: invalid request")
	ErrNotFound       = errors.New("reports: report not found")
	ErrAlreadyFiled   = errors.New("reports: report already filed for call")
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 100
)

// Repository is the persistence contract for reports.
// Create must reject a second report for the same intake (call id plus
// received time) with ErrAlreadyFiled.
type Repository interface {
	Create(ctx context.Context, r Report) error
	Get(ctx context.Context, id string) (Report, error)
	FindByCall(ctx context.Context, callID string, receivedAt time.Time) (Report, error)
	ListByCounselor(ctx context.Context, counselorID string, q Search) ([]Report, error)
	ListInRange(ctx context.Context, counselorID string, from, to time.Time) ([]Report, error)
}

type Service struct {
	repo     Repository
	validate *validator.Validate
	clock    func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validate: validator.New(), clock: time.Now}
}

// WithClock overrides the time source; intended for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Validate checks a payload without persisting it.
func (s *Service) Validate(p Payload) error {
	if strings.TrimSpace(p.Memo) == "" {
		return fmt.Errorf("%w: memo is required", ErrInvalidPayload)
	}
	if err := s.validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %s", ErrInvalidPayload, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// Finalize persists the report for a claimed call and returns its id.
func (s *Service) Finalize(ctx context.Context, entry queue.CallEntry, counselorID string, p Payload) (string, error) {
	if s.repo == nil {
		return "", errors.New("reports: repository not configured")
	}
	if entry.ID == "" || counselorID == "" {
		return "", ErrInvalidRequest
	}
	if err := s.Validate(p); err != nil {
		return "", err
	}

	if existing, ok, err := s.filedBy(ctx, entry, counselorID); err != nil || ok {
		return existing, err
	}

	r := Report{
		ID:                uuid.NewString(),
		CallID:            entry.ID,
		CounselorID:       counselorID,
		Phone:             entry.Phone,
		ClientName:        strings.TrimSpace(p.ClientName),
		ClientAge:         p.ClientAge,
		ClientGender:      p.ClientGender,
		Memo:              p.Memo,
		RiskLevelRecorded: entry.RiskLevel,
		CallReceivedAt:    entry.ReceivedAt,
		CreatedAt:         s.clock().UTC(),
	}
	if err := s.repo.Create(ctx, r); err != nil {
		if errors.Is(err, ErrAlreadyFiled) {
			if existing, ok, ferr := s.filedBy(ctx, entry, counselorID); ferr != nil || ok {
				return existing, ferr
			}
		}
		return "", err
	}
	return r.ID, nil
}

// filedBy looks for a report already stored for this intake. A report by the
// same counselor makes Finalize a no-op that returns its id, so a retry after
// a lost reply succeeds. A report by anyone else is ErrAlreadyFiled.
func (s *Service) filedBy(ctx context.Context, entry queue.CallEntry, counselorID string) (string, bool, error) {
	existing, err := s.repo.FindByCall(ctx, entry.ID, entry.ReceivedAt)
	switch {
	case errors.Is(err, ErrNotFound):
		return "", false, nil
	case err != nil:
		return "", false, err
	case existing.CounselorID != counselorID:
		return "", false, ErrAlreadyFiled
	default:
		return existing.ID, true, nil
	}
}

// Get returns a report only to the counselor who filed it.
func (s *Service) Get(ctx context.Context, counselorID, id string) (Report, error) {
	if counselorID == "" || id == "" {
		return Report{}, ErrInvalidRequest
	}
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return Report{}, err
	}
	if r.CounselorID != counselorID {
		return Report{}, ErrNotFound
	}
	return r, nil
}

// ListByCounselor returns the counselor's reports, newest first.
func (s *Service) ListByCounselor(ctx context.Context, counselorID string, q Search) ([]Report, error) {
	if counselorID == "" {
		return nil, ErrInvalidRequest
	}
	q.Term = strings.TrimSpace(q.Term)
	switch q.By {
	case "", SearchByName, SearchByPhone:
	default:
		return nil, fmt.Errorf("%w: search_by must be name or phone", ErrInvalidRequest)
	}
	if q.Term != "" && q.By == "" {
		q.By = SearchByName
	}
	if q.Limit <= 0 || q.Limit > MaxListLimit {
		q.Limit = DefaultListLimit
	}
	return s.repo.ListByCounselor(ctx, counselorID, q)
}

func (s *Service) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	if req.CounselorID == "" {
		return Summary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return Summary{}, ErrInvalidRequest
	}

	rows, err := s.repo.ListInRange(ctx, req.CounselorID, req.Range.From, req.Range.To)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{CounselorID: req.CounselorID}
	var waited time.Duration
	for _, r := range rows {
		out.TotalReports++
		waited += r.CreatedAt.Sub(r.CallReceivedAt)
		switch r.RiskLevelRecorded {
		case queue.RiskHigh:
			out.HighRisk++
		case queue.RiskMedium:
			out.MediumRisk++
		case queue.RiskLow:
			out.LowRisk++
		}
	}
	if out.TotalReports > 0 {
		out.AverageWaitSeconds = int(waited.Seconds()) / out.TotalReports
	}
	return out, nil
}
