package queue_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-portal/lock"
	"hospital-portal/models"
	"hospital-portal/queue"
	"hospital-portal/store/memory"
)

var (
	runnerR = models.Identity{ID: "r", Name: "Dr. Reyes", Role: models.RoleDoctor}
	doctorS = models.Identity{ID: "s", Name: "Dr. Sato", Role: models.RoleDoctor}
	adminA  = models.Identity{ID: "a", Name: "Admin", Role: models.RoleAdmin}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recorder struct {
	mu     sync.Mutex
	events []models.QueueStatus
}

func (r *recorder) Publish(s models.QueueStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) last() models.QueueStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func roster(n int) []models.Participant {
	out := make([]models.Participant, n)
	for i := range out {
		out[i] = models.Participant{ID: fmt.Sprintf("d%d", i+1), Name: fmt.Sprintf("Doctor %d", i+1)}
	}
	return out
}

func newTestService(t *testing.T, opts ...queue.Option) (*queue.Service, *memory.Store, *recorder) {
	t.Helper()
	store := memory.New()
	rec := &recorder{}
	clock := newFakeClock()
	opts = append([]queue.Option{queue.WithNotifier(rec), queue.WithClock(clock.Now)}, opts...)
	return queue.NewService(store, lock.NewLocal(), opts...), store, rec
}

func startAs(t *testing.T, svc *queue.Service, caller models.Identity, n int) *models.ActiveSession {
	t.Helper()
	session, err := svc.Start(context.Background(), caller, queue.StartRequest{Doctors: roster(n), RunnerName: caller.Name})
	require.NoError(t, err)
	return session
}

func TestStartCreatesRunningSession(t *testing.T) {
	svc, store, rec := newTestService(t)
	ctx := context.Background()

	session := startAs(t, svc, runnerR, 4)
	assert.True(t, session.IsRunning)
	assert.Equal(t, 0, session.CurrentIndex)
	assert.Equal(t, "r", session.RunnerID)
	assert.Equal(t, 1, store.RunningCount())

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsRunning)
	require.NotNil(t, status.CurrentDoctor)
	assert.Equal(t, "d1", status.CurrentDoctor.ID)
	assert.Equal(t, "Dr. Reyes", status.RunnerName)
	assert.True(t, rec.last().IsRunning)
}

func TestStartRejectsShortRoster(t *testing.T) {
	svc, store, _ := newTestService(t)

	_, err := svc.Start(context.Background(), runnerR, queue.StartRequest{Doctors: roster(3), RunnerName: "R"})
	require.ErrorIs(t, err, queue.ErrValidation)
	assert.Contains(t, err.Error(), "at least 4 doctors")
	assert.Equal(t, 0, store.RunningCount())

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.IsRunning)
	assert.Empty(t, status.Doctors)
	assert.NotNil(t, status.Doctors)
}

func TestStartRejectsBadParticipants(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	dup := roster(4)
	dup[3].ID = dup[0].ID
	_, err := svc.Start(ctx, runnerR, queue.StartRequest{Doctors: dup, RunnerName: "R"})
	require.ErrorIs(t, err, queue.ErrValidation)

	blank := roster(4)
	blank[1].Name = "  "
	_, err = svc.Start(ctx, runnerR, queue.StartRequest{Doctors: blank, RunnerName: "R"})
	require.ErrorIs(t, err, queue.ErrValidation)

	_, err = svc.Start(ctx, runnerR, queue.StartRequest{Doctors: roster(4)})
	require.ErrorIs(t, err, queue.ErrValidation)
}

func TestStartHonorsMinDoctorsOption(t *testing.T) {
	svc, _, _ := newTestService(t, queue.WithMinDoctors(2))
	assert.Equal(t, 2, svc.MinDoctors())

	_, err := svc.Start(context.Background(), runnerR, queue.StartRequest{Doctors: roster(2), RunnerName: "R"})
	require.NoError(t, err)
}

func TestConcurrentStartsLeaveOneRunningSession(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	callers := []models.Identity{runnerR, doctorS, {ID: "t", Role: models.RoleDoctor}, {ID: "u", Role: models.RoleDoctor}}
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		caller := callers[i%len(callers)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Start(ctx, caller, queue.StartRequest{Doctors: roster(4), RunnerName: caller.ID})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, queue.ErrForbidden)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.RunningCount())
	assert.GreaterOrEqual(t, succeeded, 1)
}

func TestStartByOwnerReplacesSession(t *testing.T) {
	svc, store, _ := newTestService(t)

	first := startAs(t, svc, runnerR, 4)
	second := startAs(t, svc, runnerR, 5)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, store.RunningCount())
	assert.Len(t, second.Doctors, 5)
}

func TestStartByOtherDoctorIsForbidden(t *testing.T) {
	svc, _, _ := newTestService(t)
	first := startAs(t, svc, runnerR, 4)

	_, err := svc.Start(context.Background(), doctorS, queue.StartRequest{Doctors: roster(6), RunnerName: "S"})
	require.ErrorIs(t, err, queue.ErrForbidden)

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "r", status.RunnerID)
	assert.Len(t, status.Doctors, len(first.Doctors))
}

func TestAdvanceWrapsAround(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	startAs(t, svc, runnerR, 4)

	var session *models.ActiveSession
	var err error
	for i := 1; i <= 4; i++ {
		session, err = svc.Advance(ctx, runnerR, queue.AdvanceRequest{Direction: queue.Forward})
		require.NoError(t, err)
		assert.Equal(t, i%4, session.CurrentIndex)
	}
	assert.Equal(t, 0, session.CurrentIndex)
}

func TestRetreatWrapsToLast(t *testing.T) {
	svc, _, _ := newTestService(t)
	startAs(t, svc, runnerR, 5)

	session, err := svc.Advance(context.Background(), runnerR, queue.AdvanceRequest{Direction: queue.Backward})
	require.NoError(t, err)
	assert.Equal(t, 4, session.CurrentIndex)
}

func TestAdvanceRequiresRunningQueue(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Advance(context.Background(), runnerR, queue.AdvanceRequest{Direction: queue.Forward})
	require.ErrorIs(t, err, queue.ErrNotRunning)
}

func TestAdvanceRejectsUnknownDirection(t *testing.T) {
	svc, _, _ := newTestService(t)
	startAs(t, svc, runnerR, 4)

	_, err := svc.Advance(context.Background(), runnerR, queue.AdvanceRequest{Direction: 2})
	require.ErrorIs(t, err, queue.ErrValidation)
}

func TestNonRunnerCannotMutate(t *testing.T) {
	svc, _, rec := newTestService(t)
	ctx := context.Background()
	startAs(t, svc, runnerR, 4)
	published := len(rec.events)

	_, err := svc.Advance(ctx, doctorS, queue.AdvanceRequest{Direction: queue.Forward})
	require.ErrorIs(t, err, queue.ErrForbidden)

	_, _, err = svc.EditRoster(ctx, doctorS, queue.EditRosterRequest{Doctors: roster(6)})
	require.ErrorIs(t, err, queue.ErrForbidden)

	_, err = svc.Stop(ctx, doctorS, queue.StopRequest{})
	require.ErrorIs(t, err, queue.ErrForbidden)

	idx := 2
	_, err = svc.Sync(ctx, doctorS, queue.SyncRequest{CurrentIndex: &idx})
	require.ErrorIs(t, err, queue.ErrForbidden)

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsRunning)
	assert.Equal(t, 0, status.CurrentIndex)
	assert.Len(t, status.Doctors, 4)
	assert.Len(t, rec.events, published)
}

func TestAdminCanMutateAnyQueue(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	startAs(t, svc, runnerR, 4)

	session, err := svc.Advance(ctx, adminA, queue.AdvanceRequest{Direction: queue.Forward})
	require.NoError(t, err)
	assert.Equal(t, 1, session.CurrentIndex)
	assert.Equal(t, "r", session.RunnerID)
}

func TestEditRosterShrinkResetsPointer(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	startAs(t, svc, runnerR, 5)
	for i := 0; i < 3; i++ {
		_, err := svc.Advance(ctx, runnerR, queue.AdvanceRequest{Direction: queue.Forward})
		require.NoError(t, err)
	}

	// Index 3 is still valid in a 4-doctor roster.
	session, _, err := svc.EditRoster(ctx, runnerR, queue.EditRosterRequest{Doctors: roster(4)})
	require.NoError(t, err)
	assert.Equal(t, 3, session.CurrentIndex)

	_, err = svc.Advance(ctx, runnerR, queue.AdvanceRequest{Direction: queue.Backward})
	require.NoError(t, err)
	_, err = svc.Advance(ctx, runnerR, queue.AdvanceRequest{Direction: queue.Backward})
	require.NoError(t, err)
	_, _, err = svc.EditRoster(ctx, runnerR, queue.EditRosterRequest{Doctors: roster(5)})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = svc.Advance(ctx, runnerR, queue.AdvanceRequest{Direction: queue.Forward})
		require.NoError(t, err)
	}

	// Index 4 falls off a 4-doctor roster and goes back to the start.
	session, _, err = svc.EditRoster(ctx, runnerR, queue.EditRosterRequest{Doctors: roster(4)})
	require.NoError(t, err)
	assert.Equal(t, 0, session.CurrentIndex)
}

func TestEditRosterWhileRunningEnforcesMinimum(t *testing.T) {
	svc, _, _ := newTestService(t)
	startAs(t, svc, runnerR, 4)

	_, _, err := svc.EditRoster(context.Background(), runnerR, queue.EditRosterRequest{Doctors: roster(2)})
	require.ErrorIs(t, err, queue.ErrValidation)
}

func TestEditRosterRenamesRunner(t *testing.T) {
	svc, _, _ := newTestService(t)
	startAs(t, svc, runnerR, 4)

	name := "Night shift"
	session, _, err := svc.EditRoster(context.Background(), runnerR, queue.EditRosterRequest{RunnerName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Night shift", session.RunnerName)
	assert.Len(t, session.Doctors, 4)
}

func TestEditRosterWhileIdleStoresDraft(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	name := "Ward 3"
	session, draft, err := svc.EditRoster(ctx, doctorS, queue.EditRosterRequest{Doctors: roster(2), RunnerName: &name})
	require.NoError(t, err)
	assert.Nil(t, session)
	require.NotNil(t, draft)
	assert.Len(t, draft.Doctors, 2)
	assert.Equal(t, "s", draft.UpdatedBy)
	assert.Equal(t, 0, store.RunningCount())

	_, _, err = svc.EditRoster(ctx, doctorS, queue.EditRosterRequest{Doctors: roster(4)})
	require.NoError(t, err)

	got, err := svc.Draft(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Doctors, 4)
	assert.Equal(t, "Ward 3", got.RunnerName)

	started, err := svc.Start(ctx, runnerR, queue.StartRequest{})
	require.NoError(t, err)
	assert.Len(t, started.Doctors, 4)
	assert.Equal(t, "Ward 3", started.RunnerName)
}

func TestDraftIsEmptyByDefault(t *testing.T) {
	svc, _, _ := newTestService(t)

	d, err := svc.Draft(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, d.Doctors)
	assert.Empty(t, d.Doctors)
}

func TestStopClearsStateAndRecordsHistory(t *testing.T) {
	svc, store, rec := newTestService(t)
	ctx := context.Background()
	startAs(t, svc, runnerR, 4)
	_, err := svc.Advance(ctx, runnerR, queue.AdvanceRequest{Direction: queue.Forward})
	require.NoError(t, err)

	res, err := svc.Stop(ctx, runnerR, queue.StopRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.DeletedCount)
	require.NotNil(t, res.History)
	assert.Equal(t, models.HistoryStopped, res.History.Status)
	assert.Equal(t, 2, res.History.CompletedDoctors)
	assert.Equal(t, 4, res.History.TotalDoctors)
	assert.Equal(t, "r", res.History.StoppedBy)
	assert.Equal(t, 0, store.RunningCount())

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.IsRunning)
	assert.False(t, rec.last().IsRunning)

	history, err := svc.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, res.History.ID, history[0].ID)
}

func TestStopStatuses(t *testing.T) {
	tests := []struct {
		name      string
		advances  int
		cancelled bool
		want      models.HistoryStatus
	}{
		{name: "completed at last doctor", advances: 3, want: models.HistoryCompleted},
		{name: "stopped midway", advances: 1, want: models.HistoryStopped},
		{name: "cancelled overrides", advances: 3, cancelled: true, want: models.HistoryCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			ctx := context.Background()
			startAs(t, svc, runnerR, 4)
			for i := 0; i < tt.advances; i++ {
				_, err := svc.Advance(ctx, runnerR, queue.AdvanceRequest{Direction: queue.Forward})
				require.NoError(t, err)
			}

			res, err := svc.Stop(ctx, runnerR, queue.StopRequest{Cancelled: tt.cancelled})
			require.NoError(t, err)
			require.NotNil(t, res.History)
			assert.Equal(t, tt.want, res.History.Status)
		})
	}
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Stop(ctx, doctorS, queue.StopRequest{})
	require.NoError(t, err)
	assert.Zero(t, res.DeletedCount)
	assert.Nil(t, res.History)

	history, err := svc.History(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSyncStartsWhenIdle(t *testing.T) {
	svc, store, _ := newTestService(t)

	name := "R"
	session, err := svc.Sync(context.Background(), runnerR, queue.SyncRequest{Doctors: roster(4), RunnerName: &name})
	require.NoError(t, err)
	assert.True(t, session.IsRunning)
	assert.Equal(t, 0, session.CurrentIndex)
	assert.Equal(t, 1, store.RunningCount())
}

func TestSyncReplacesState(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	first := startAs(t, svc, runnerR, 5)

	idx := 3
	session, err := svc.Sync(ctx, runnerR, queue.SyncRequest{CurrentIndex: &idx})
	require.NoError(t, err)
	assert.Equal(t, first.ID, session.ID)
	assert.Equal(t, 3, session.CurrentIndex)
	assert.True(t, session.LastUpdated.After(first.LastUpdated))

	idx = 9
	session, err = svc.Sync(ctx, runnerR, queue.SyncRequest{CurrentIndex: &idx})
	require.NoError(t, err)
	assert.Equal(t, 0, session.CurrentIndex)

	idx = -1
	_, err = svc.Sync(ctx, runnerR, queue.SyncRequest{CurrentIndex: &idx})
	require.ErrorIs(t, err, queue.ErrValidation)
}

// Runner R starts, S is locked out, an admin takes over the pointer and then
// stops; afterwards anyone may start.
func TestRunnerDoctorAdminScenario(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	startAs(t, svc, runnerR, 4)
	_, err := svc.Advance(ctx, runnerR, queue.AdvanceRequest{Direction: queue.Forward})
	require.NoError(t, err)

	_, err = svc.Advance(ctx, doctorS, queue.AdvanceRequest{Direction: queue.Forward})
	require.ErrorIs(t, err, queue.ErrForbidden)

	session, err := svc.Advance(ctx, adminA, queue.AdvanceRequest{Direction: queue.Forward})
	require.NoError(t, err)
	assert.Equal(t, 2, session.CurrentIndex)

	_, err = svc.Stop(ctx, adminA, queue.StopRequest{})
	require.NoError(t, err)

	session = startAs(t, svc, doctorS, 4)
	assert.Equal(t, "s", session.RunnerID)
	assert.Equal(t, 1, store.RunningCount())
}

func TestHistoryNewestFirstWithLimit(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		startAs(t, svc, runnerR, 4)
		res, err := svc.Stop(ctx, runnerR, queue.StopRequest{})
		require.NoError(t, err)
		ids = append(ids, res.History.ID)
	}

	history, err := svc.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ids[2], history[0].ID)
	assert.Equal(t, ids[1], history[1].ID)
}

func TestSyncForStoppedSessionDoesNotRestart(t *testing.T) {
	svc, store, rec := newTestService(t)
	ctx := context.Background()
	session := startAs(t, svc, runnerR, 4)

	_, err := svc.Stop(ctx, adminA, queue.StopRequest{})
	require.NoError(t, err)
	published := len(rec.events)

	idx := 1
	start := session.StartTime
	_, err = svc.Sync(ctx, runnerR, queue.SyncRequest{CurrentIndex: &idx, Doctors: roster(4), StartTime: &start})
	require.ErrorIs(t, err, queue.ErrNotRunning)
	assert.Equal(t, 0, store.RunningCount())
	assert.Len(t, rec.events, published)
}

func TestSyncForReplacedSessionIsRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	first := startAs(t, svc, runnerR, 4)
	second := startAs(t, svc, runnerR, 5)

	idx := 2
	stale := first.StartTime
	_, err := svc.Sync(ctx, runnerR, queue.SyncRequest{CurrentIndex: &idx, StartTime: &stale})
	require.ErrorIs(t, err, queue.ErrNotRunning)

	current := second.StartTime.Add(300 * time.Microsecond)
	session, err := svc.Sync(ctx, runnerR, queue.SyncRequest{CurrentIndex: &idx, StartTime: &current})
	require.NoError(t, err)
	assert.Equal(t, second.ID, session.ID)
	assert.Equal(t, 2, session.CurrentIndex)
}

type orderedNotifier struct {
	mu     sync.Mutex
	events []int
}

func (n *orderedNotifier) Publish(s models.QueueStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, s.CurrentIndex)
}

func TestPublishOrderMatchesCommitOrder(t *testing.T) {
	store := memory.New()
	n := &orderedNotifier{}
	clock := newFakeClock()
	svc := queue.NewService(store, lock.NewLocal(), queue.WithNotifier(n), queue.WithClock(clock.Now))
	ctx := context.Background()
	startAs(t, svc, runnerR, 50)

	var wg sync.WaitGroup
	for i := 0; i < 49; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Advance(ctx, runnerR, queue.AdvanceRequest{Direction: queue.Forward})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	require.Len(t, n.events, 50)
	for i, idx := range n.events {
		assert.Equal(t, i, idx, "event %d", i)
	}
}
