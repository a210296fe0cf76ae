package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"triage-platform/internal/audit"
	"triage-platform/internal/presence"
	"triage-platform/internal/queue"
	"triage-platform/internal/reports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dropReplyRepo commits a report and then reports a failure, the way a
// store does when the connection drops after COMMIT.
type dropReplyRepo struct {
	*reports.MemoryRepo

	mu       sync.Mutex
	dropNext bool
}

func (r *dropReplyRepo) Create(ctx context.Context, rep reports.Report) error {
	if err := r.MemoryRepo.Create(ctx, rep); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dropNext {
		r.dropNext = false
		return errors.New("connection reset by peer")
	}
	return nil
}

type reportFixture struct {
	d     *Dispatcher
	clock *testClock
	repo  *dropReplyRepo
	svc   *reports.Service
	audit *audit.MemoryRepo
}

// newReportFixture wires the dispatcher to a real report service.
func newReportFixture(t *testing.T) *reportFixture {
	t.Helper()
	clk := &testClock{now: time.Unix(1700000000, 0).UTC()}
	repo := &dropReplyRepo{MemoryRepo: reports.NewMemoryRepo()}
	svc := reports.NewService(repo).WithClock(clk.Now)
	events := audit.NewMemoryRepo()

	d := New(queue.NewStore(), presence.NewTracker(30*time.Second).WithClock(clk.Now), svc, Options{
		Audit: audit.NewService(events).WithClock(clk.Now),
		Clock: clk.Now,
	})
	return &reportFixture{d: d, clock: clk, repo: repo, svc: svc, audit: events}
}

func (f *reportFixture) claim(t *testing.T, callID, counselorID string) {
	t.Helper()
	f.d.SetStatus(context.Background(), counselorID, true)
	_, err := f.d.Claim(context.Background(), callID, counselorID)
	require.NoError(t, err)
}

func TestComplete_ReusedCallIDFilesNewReport(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()

	_, err := f.d.Enqueue(ctx, Intake{ID: "intake-42", Phone: "010", RiskLevel: queue.RiskLow})
	require.NoError(t, err)
	f.claim(t, "intake-42", "a")
	first, err := f.d.Complete(ctx, "intake-42", "a", memo)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.d.Enqueue(ctx, Intake{ID: "intake-42", Phone: "010", RiskLevel: queue.RiskHigh})
	require.NoError(t, err, "a completed id may be enqueued again")
	f.claim(t, "intake-42", "b")
	second, err := f.d.Complete(ctx, "intake-42", "b", memo)
	require.NoError(t, err)

	assert.NotEqual(t, first.ReportID, second.ReportID)
	_, err = f.d.Get(ctx, "intake-42")
	assert.ErrorIs(t, err, queue.ErrNotFound)

	rep, err := f.svc.Get(ctx, "b", second.ReportID)
	require.NoError(t, err)
	assert.Equal(t, queue.RiskHigh, rep.RiskLevelRecorded)
}

func TestComplete_RetryAfterDroppedReplyReturnsFiledReport(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()
	call, err := f.d.Enqueue(ctx, Intake{Phone: "010", RiskLevel: queue.RiskMedium})
	require.NoError(t, err)
	f.claim(t, call.ID, "a")

	f.repo.dropNext = true
	_, err = f.d.Complete(ctx, call.ID, "a", memo)
	require.ErrorIs(t, err, ErrPersistence)

	got, err := f.d.Get(ctx, call.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateClaimed, got.State)

	out, err := f.d.Complete(ctx, call.ID, "a", memo)
	require.NoError(t, err, "the retry must not be stuck behind the committed report")

	filed, err := f.svc.ListByCounselor(ctx, "a", reports.Search{})
	require.NoError(t, err)
	require.Len(t, filed, 1)
	assert.Equal(t, filed[0].ID, out.ReportID)

	_, err = f.d.Get(ctx, call.ID)
	assert.ErrorIs(t, err, queue.ErrNotFound)
}

func TestComplete_EvictsCallAlreadyReportedByEarlierHolder(t *testing.T) {
	f := newReportFixture(t)
	ctx := context.Background()
	call, err := f.d.Enqueue(ctx, Intake{Phone: "010", RiskLevel: queue.RiskHigh})
	require.NoError(t, err)
	f.claim(t, call.ID, "a")

	f.repo.dropNext = true
	_, err = f.d.Complete(ctx, call.ID, "a", memo)
	require.ErrorIs(t, err, ErrPersistence)

	f.clock.Advance(10 * time.Minute)
	reclaimed, err := f.d.ReclaimStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, []string{call.ID}, reclaimed)

	f.claim(t, call.ID, "b")
	_, err = f.d.Complete(ctx, call.ID, "b", memo)
	require.ErrorIs(t, err, ErrAlreadyReported)
	assert.Equal(t, "already_reported", Code(err))

	_, err = f.d.Get(ctx, call.ID)
	assert.ErrorIs(t, err, queue.ErrNotFound, "a reported call leaves the queue")

	mine, err := f.svc.ListByCounselor(ctx, "b", reports.Search{})
	require.NoError(t, err)
	assert.Empty(t, mine)

	events := f.audit.ByCall(call.ID)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, audit.EventCallCompleted, last.Type)
	assert.Equal(t, "b", last.CounselorID)
}

func TestEnqueue_StampsReceivedAtServerSide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	future, err := f.d.Enqueue(ctx, Intake{Phone: "010", RiskLevel: queue.RiskLow, ReceivedAt: now.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.True(t, future.ReceivedAt.Equal(now), "a future arrival is clamped to the dispatcher clock")

	past := now.Add(-time.Minute).Add(1234 * time.Nanosecond)
	early, err := f.d.Enqueue(ctx, Intake{Phone: "010", RiskLevel: queue.RiskLow, ReceivedAt: past})
	require.NoError(t, err)
	assert.True(t, early.ReceivedAt.Equal(past.Truncate(time.Microsecond)))

	zero, err := f.d.Enqueue(ctx, Intake{Phone: "010", RiskLevel: queue.RiskLow})
	require.NoError(t, err)
	assert.True(t, zero.ReceivedAt.Equal(now))

	f.online("c1")
	snap, err := f.d.ListWaiting(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 3, snap.Len())
	assert.Equal(t, early.ID, snap.Entries()[0].ID, "a clamped call cannot jump ahead of earlier arrivals")
}

func TestClaim_RefreshesHeartbeat(t *testing.T) {
	f := newFixture(t)
	call := f.enqueue(t, queue.RiskLow)
	f.online("c1")

	f.clock.Advance(25 * time.Second)
	_, err := f.d.Claim(context.Background(), call.ID, "c1")
	require.NoError(t, err)

	f.clock.Advance(25 * time.Second)
	_, err = f.d.ListWaiting(context.Background(), "c1")
	assert.NoError(t, err, "claiming counts as activity")
}
