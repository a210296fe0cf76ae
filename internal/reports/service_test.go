package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"triage-platform/internal/queue"
)

func claimedEntry(id, phone string, risk queue.RiskLevel, at time.Time) queue.CallEntry {
	return queue.CallEntry{ID: id, Phone: phone, RiskLevel: risk, ReceivedAt: at, State: queue.StateClaimed, ClaimedBy: "c1"}
}

func TestFinalize_RequiresMemo(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	now := time.Unix(1700000000, 0).UTC()

	_, err := svc.Finalize(context.Background(), claimedEntry("call-1", "010", queue.RiskHigh, now), "c1", Payload{Memo: "   "})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestFinalize_RejectsBadGenderAndAge(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	now := time.Unix(1700000000, 0).UTC()
	age := 200

	if _, err := svc.Finalize(context.Background(), claimedEntry("a", "1", queue.RiskLow, now), "c1", Payload{Memo: "m", ClientGender: "x"}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected gender rejection, got %v", err)
	}
	if _, err := svc.Finalize(context.Background(), claimedEntry("b", "1", queue.RiskLow, now), "c1", Payload{Memo: "m", ClientAge: &age}); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected age rejection, got %v", err)
	}
}

func TestFinalize_RecordsCallSnapshotOncePerCall(t *testing.T) {
	repo := NewMemoryRepo()
	received := time.Unix(1700000000, 0).UTC()
	filed := received.Add(90 * time.Second)
	svc := NewService(repo).WithClock(func() time.Time { return filed })

	entry := claimedEntry("call-1", "010-1234-5678", queue.RiskHigh, received)
	id, err := svc.Finalize(context.Background(), entry, "c1", Payload{ClientName: "Kim", ClientGender: "female", Memo: "follow up"})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	got, err := svc.Get(context.Background(), "c1", id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RiskLevelRecorded != queue.RiskHigh || got.Phone != "010-1234-5678" || !got.CallReceivedAt.Equal(received) {
		t.Fatalf("unexpected report: %+v", got)
	}

	again, err := svc.Finalize(context.Background(), entry, "c1", Payload{Memo: "again"})
	if err != nil || again != id {
		t.Fatalf("expected retry to return %s, got %q (%v)", id, again, err)
	}
	if _, err := svc.Finalize(context.Background(), entry, "c2", Payload{Memo: "late"}); !errors.Is(err, ErrAlreadyFiled) {
		t.Fatalf("expected ErrAlreadyFiled for another counselor, got %v", err)
	}
	if all, _ := svc.ListByCounselor(context.Background(), "c1", Search{}); len(all) != 1 || all[0].Memo != "follow up" {
		t.Fatalf("expected the first report to stand alone, got %+v", all)
	}
}

func TestFinalize_ReusedCallIDIsANewIntake(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	first := time.Unix(1700000000, 0).UTC()

	a, err := svc.Finalize(context.Background(), claimedEntry("call-1", "010", queue.RiskLow, first), "c1", Payload{Memo: "first"})
	if err != nil {
		t.Fatalf("finalize first: %v", err)
	}
	b, err := svc.Finalize(context.Background(), claimedEntry("call-1", "010", queue.RiskHigh, first.Add(time.Hour)), "c2", Payload{Memo: "second"})
	if err != nil {
		t.Fatalf("finalize second: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct reports, both are %s", a)
	}
}

// lateCreateRepo hides the stored report from the first lookup so Finalize
// reaches Create and hits the unique intake key, as two racing writers would.
type lateCreateRepo struct {
	*MemoryRepo
	hidden bool
}

func (r *lateCreateRepo) FindByCall(ctx context.Context, callID string, receivedAt time.Time) (Report, error) {
	if !r.hidden {
		r.hidden = true
		return Report{}, ErrNotFound
	}
	return r.MemoryRepo.FindByCall(ctx, callID, receivedAt)
}

func TestFinalize_ConflictOnCreateResolvesToExistingReport(t *testing.T) {
	mem := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	entry := claimedEntry("call-1", "010", queue.RiskLow, now)
	id, err := NewService(mem).Finalize(context.Background(), entry, "c1", Payload{Memo: "m"})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	got, err := NewService(&lateCreateRepo{MemoryRepo: mem}).Finalize(context.Background(), entry, "c1", Payload{Memo: "m"})
	if err != nil || got != id {
		t.Fatalf("expected %s after create conflict, got %q (%v)", id, got, err)
	}
	if _, err := NewService(&lateCreateRepo{MemoryRepo: mem}).Finalize(context.Background(), entry, "c2", Payload{Memo: "m"}); !errors.Is(err, ErrAlreadyFiled) {
		t.Fatalf("expected ErrAlreadyFiled, got %v", err)
	}
}

func TestGet_HidesOtherCounselorsReports(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	now := time.Unix(1700000000, 0).UTC()
	id, err := svc.Finalize(context.Background(), claimedEntry("call-1", "010", queue.RiskLow, now), "c1", Payload{Memo: "m"})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := svc.Get(context.Background(), "c2", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another counselor, got %v", err)
	}
}

func TestListByCounselor_SearchByNameAndPhone(t *testing.T) {
	repo := NewMemoryRepo()
	base := time.Unix(1700000000, 0).UTC()
	tick := base
	svc := NewService(repo).WithClock(func() time.Time { tick = tick.Add(time.Minute); return tick })

	mustFinalize(t, svc, claimedEntry("1", "010-1111-2222", queue.RiskLow, base), "c1", "Kim Minji")
	mustFinalize(t, svc, claimedEntry("2", "010-3333-4444", queue.RiskMedium, base), "c1", "Lee Jun")
	mustFinalize(t, svc, claimedEntry("3", "010-1111-9999", queue.RiskHigh, base), "c2", "Kim Other")

	all, err := svc.ListByCounselor(context.Background(), "c1", Search{})
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 reports, got %d (%v)", len(all), err)
	}
	if all[0].CallID != "2" {
		t.Fatalf("expected newest first, got %s", all[0].CallID)
	}

	byName, _ := svc.ListByCounselor(context.Background(), "c1", Search{By: SearchByName, Term: "kim"})
	if len(byName) != 1 || byName[0].CallID != "1" {
		t.Fatalf("unexpected name search: %+v", byName)
	}

	byPhone, _ := svc.ListByCounselor(context.Background(), "c1", Search{By: SearchByPhone, Term: "3333"})
	if len(byPhone) != 1 || byPhone[0].CallID != "2" {
		t.Fatalf("unexpected phone search: %+v", byPhone)
	}

	if _, err := svc.ListByCounselor(context.Background(), "c1", Search{By: "memo", Term: "x"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestListByCounselor_AppliesLimit(t *testing.T) {
	base := time.Unix(1700000000, 0).UTC()
	tick := base
	svc := NewService(NewMemoryRepo()).WithClock(func() time.Time { tick = tick.Add(time.Minute); return tick })
	for _, id := range []string{"1", "2", "3"} {
		mustFinalize(t, svc, claimedEntry(id, "010", queue.RiskLow, base), "c1", "Kim")
	}

	two, err := svc.ListByCounselor(context.Background(), "c1", Search{Limit: 2})
	if err != nil || len(two) != 2 || two[0].CallID != "3" {
		t.Fatalf("expected the two newest reports, got %+v (%v)", two, err)
	}
	all, _ := svc.ListByCounselor(context.Background(), "c1", Search{Limit: MaxListLimit + 50})
	if len(all) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(all))
	}

	rec := &limitRecorder{MemoryRepo: NewMemoryRepo()}
	for _, limit := range []int{0, -1, MaxListLimit + 1} {
		if _, err := NewService(rec).ListByCounselor(context.Background(), "c1", Search{Limit: limit}); err != nil {
			t.Fatalf("list: %v", err)
		}
		if rec.last != DefaultListLimit {
			t.Fatalf("limit %d: expected repo to see %d, got %d", limit, DefaultListLimit, rec.last)
		}
	}
}

type limitRecorder struct {
	*MemoryRepo
	last int
}

func (r *limitRecorder) ListByCounselor(ctx context.Context, counselorID string, q Search) ([]Report, error) {
	r.last = q.Limit
	return r.MemoryRepo.ListByCounselor(ctx, counselorID, q)
}

func TestSummary_CountsByRecordedRisk(t *testing.T) {
	repo := NewMemoryRepo()
	base := time.Unix(1700000000, 0).UTC()
	svc := NewService(repo).WithClock(func() time.Time { return base.Add(2 * time.Minute) })

	mustFinalize(t, svc, claimedEntry("1", "1", queue.RiskHigh, base), "c1", "")
	mustFinalize(t, svc, claimedEntry("2", "2", queue.RiskHigh, base.Add(time.Minute)), "c1", "")
	mustFinalize(t, svc, claimedEntry("3", "3", queue.RiskLow, base), "c1", "")

	out, err := svc.Summary(context.Background(), SummaryRequest{CounselorID: "c1", Range: TimeRange{From: base, To: base.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if out.TotalReports != 3 || out.HighRisk != 2 || out.LowRisk != 1 || out.MediumRisk != 0 {
		t.Fatalf("unexpected summary: %+v", out)
	}
	// waits: 120s, 60s, 120s
	if out.AverageWaitSeconds != 100 {
		t.Fatalf("expected average wait 100s, got %d", out.AverageWaitSeconds)
	}

	if _, err := svc.Summary(context.Background(), SummaryRequest{CounselorID: "c1", Range: TimeRange{From: base, To: base}}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for empty range, got %v", err)
	}
}

func mustFinalize(t *testing.T, svc *Service, e queue.CallEntry, counselorID, name string) {
	t.Helper()
	if _, err := svc.Finalize(context.Background(), e, counselorID, Payload{ClientName: name, Memo: "memo"}); err != nil {
		t.Fatalf("finalize %s: %v", e.ID, err)
	}
}
