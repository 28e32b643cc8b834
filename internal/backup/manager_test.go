package backup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davexpro/hybrid-backup/internal/db"
	"github.com/davexpro/hybrid-backup/internal/db/dbtest"
	"github.com/davexpro/hybrid-backup/internal/errs"
	"github.com/davexpro/hybrid-backup/internal/mapper"
	"github.com/davexpro/hybrid-backup/internal/runlock"
	"github.com/davexpro/hybrid-backup/internal/source"
)

type memLock struct {
	mu          sync.Mutex
	running     bool
	nextID      uint
	completions []runlock.Completion
}

func (l *memLock) Acquire(ctx context.Context, backupType string) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil, errs.NewAlreadyRunning("backup in progress")
	}
	l.running = true
	l.nextID++
	return &memLease{lock: l, id: l.nextID}, nil
}

type memLease struct {
	lock *memLock
	id   uint
}

func (ls *memLease) LogID() uint { return ls.id }

func (ls *memLease) Release(ctx context.Context, c runlock.Completion) error {
	ls.lock.mu.Lock()
	defer ls.lock.mu.Unlock()
	ls.lock.running = false
	ls.lock.completions = append(ls.lock.completions, c)
	return nil
}

// gatedEnum holds Open until the gate is closed.
type gatedEnum[T any] struct {
	source.Enumerator[T]
	gate chan struct{}
}

func (g *gatedEnum[T]) Open(ctx context.Context) (source.Cursor[T], error) {
	<-g.gate
	return g.Enumerator.Open(ctx)
}

type panicEnum struct{}

func (panicEnum) Name() string { return "counseling_sessions" }

func (panicEnum) Open(ctx context.Context) (source.Cursor[source.CounselingSession], error) {
	panic("cursor exploded")
}

func scenarioSources() Sources {
	return Sources{
		Users: &source.Static[source.UserAccount]{
			Collection: "users",
			Records:    []source.UserAccount{{UID: "u1"}},
		},
		Profiles: &source.Static[source.UserProfile]{Collection: "user_profiles"},
		Emotions: &source.Static[source.EmotionEntry]{
			Collection: "emotion_records",
			Records:    []source.EmotionEntry{{UID: "u1", Date: "2024-01-01", Keywords: []string{"기쁨"}}},
		},
		Sessions: &source.Static[source.CounselingSession]{Collection: "counseling_sessions"},
	}
}

func newTestManager(lock Lock, dest *dbtest.MemoryDestination, sources Sources) *Manager {
	now := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	m := &mapper.Mapper{Now: func() time.Time { return now }}
	return NewManager(lock, dest, sources, m, dbtest.Logger())
}

func TestRunFullBackup_Scenario(t *testing.T) {
	lock := &memLock{}
	dest := dbtest.NewMemoryDestination()
	m := newTestManager(lock, dest, scenarioSources())

	out, err := m.RunFullBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, db.StatusSuccess, out.Status)
	first := dest.Rows("emotion_records")
	require.Len(t, first, 1)
	row := first["u1/2024-01-01"].(db.EmotionRecord)
	assert.Equal(t, "u1", row.UID)
	assert.Equal(t, "2024-01-01", row.Date)

	out, err = m.RunFullBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, db.StatusSuccess, out.Status)
	assert.Equal(t, first, dest.Rows("emotion_records"))
	assert.Len(t, dest.Rows("users"), 1)

	require.Len(t, lock.completions, 2)
	for _, c := range lock.completions {
		assert.Equal(t, db.StatusSuccess, c.Status)
		assert.Equal(t, 2, c.ProcessedCount)
		assert.Equal(t, 0, c.FailedCount)
	}
}

func TestRunFullBackup_CollectionOrder(t *testing.T) {
	sources := scenarioSources()
	sources.Profiles = &source.Static[source.UserProfile]{
		Collection: "user_profiles",
		Records:    []source.UserProfile{{UID: "u1"}},
	}
	sources.Sessions = &source.Static[source.CounselingSession]{
		Collection: "counseling_sessions",
		Records: []source.CounselingSession{{
			SessionID: "s1",
			UID:       "u1",
			Messages:  []source.ChatMessage{{Role: "user", Content: "안녕하세요"}},
		}},
	}
	dest := dbtest.NewMemoryDestination()

	out, err := newTestManager(&memLock{}, dest, sources).RunFullBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"users/u1",
		"user_profiles/u1",
		"emotion_records/u1/2024-01-01",
		"counseling_sessions/u1/s1",
		"chat_messages/s1#0",
	}, dest.Writes)

	require.Len(t, out.Collections, 4)
	assert.Equal(t, "users", out.Collections[0].Collection)
	assert.Equal(t, "counseling_sessions", out.Collections[3].Collection)
	assert.Equal(t, 1, out.Collections[3].MessagesProcessed)
}

func TestRunFullBackup_PartialFailureIsSuccess(t *testing.T) {
	sources := scenarioSources()
	sources.Emotions = &source.Static[source.EmotionEntry]{
		Collection: "emotion_records",
		Records: []source.EmotionEntry{
			{UID: "u1", Date: "2024-01-01"},
			{UID: "u1", Date: "2024-01-02"},
			{UID: "u1"},
			{UID: "u1", Date: "2024-01-04"},
			{UID: "u1", Date: "2024-01-05"},
		},
	}
	lock := &memLock{}

	out, err := newTestManager(lock, dbtest.NewMemoryDestination(), sources).RunFullBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, db.StatusSuccess, out.Status)
	assert.Empty(t, out.Error)
	assert.Equal(t, 4, out.Collections[2].Processed)
	assert.Equal(t, 1, out.Collections[2].Failed)
	require.Len(t, lock.completions, 1)
	assert.Equal(t, 1, lock.completions[0].FailedCount)
}

func TestRunFullBackup_SourceOpenFailureFailsRun(t *testing.T) {
	sources := scenarioSources()
	sources.Profiles = &source.Static[source.UserProfile]{
		Collection: "user_profiles",
		OpenErr:    errors.New("server selection timeout"),
	}
	lock := &memLock{}
	dest := dbtest.NewMemoryDestination()

	out, err := newTestManager(lock, dest, sources).RunFullBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, db.StatusFailed, out.Status)
	assert.Contains(t, out.Error, "SOURCE_OPEN_ERROR [user_profiles]")
	assert.Len(t, dest.Rows("emotion_records"), 1, "later collections still run")

	require.Len(t, lock.completions, 1)
	assert.Equal(t, db.StatusFailed, lock.completions[0].Status)
	assert.Equal(t, out.Error, lock.completions[0].ErrorMessage)
}

func TestRunFullBackup_PanicReleasesLock(t *testing.T) {
	sources := scenarioSources()
	sources.Sessions = panicEnum{}
	lock := &memLock{}
	m := newTestManager(lock, dbtest.NewMemoryDestination(), sources)

	out, err := m.RunFullBackup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cursor exploded")
	assert.Equal(t, db.StatusFailed, out.Status)
	require.Len(t, lock.completions, 1)
	assert.Equal(t, db.StatusFailed, lock.completions[0].Status)
	assert.False(t, lock.running)
}

func TestRunFullBackup_AlreadyRunning(t *testing.T) {
	lock := &memLock{running: true}
	out, err := newTestManager(lock, dbtest.NewMemoryDestination(), scenarioSources()).RunFullBackup(context.Background())
	assert.Nil(t, out)
	assert.ErrorIs(t, err, errs.ErrAlreadyRunning)
	assert.Empty(t, lock.completions)
}

func TestTrigger_SingleFlight(t *testing.T) {
	gate := make(chan struct{})
	sources := scenarioSources()
	sources.Users = &gatedEnum[source.UserAccount]{Enumerator: sources.Users, gate: gate}
	lock := &memLock{}
	m := newTestManager(lock, dbtest.NewMemoryDestination(), sources)

	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Trigger(context.Background())
		}(i)
	}
	wg.Wait()

	var started, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			started++
		case errors.Is(err, errs.ErrAlreadyRunning):
			rejected++
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, rejected)

	close(gate)
	m.Wait()
	require.Len(t, lock.completions, 1)
	assert.Equal(t, db.StatusSuccess, lock.completions[0].Status)
}

func TestTrigger_OutlivesRequestContext(t *testing.T) {
	gate := make(chan struct{})
	sources := scenarioSources()
	sources.Users = &gatedEnum[source.UserAccount]{Enumerator: sources.Users, gate: gate}
	lock := &memLock{}
	dest := dbtest.NewMemoryDestination()
	m := newTestManager(lock, dest, sources)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Trigger(ctx))
	cancel()
	close(gate)
	m.Wait()

	require.Len(t, lock.completions, 1)
	assert.Equal(t, db.StatusSuccess, lock.completions[0].Status)
	assert.Len(t, dest.Rows("users"), 1)
}
