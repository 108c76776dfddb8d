package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/agreements/internal/gateway"
	"github.com/roach88/agreements/internal/ir"
	"github.com/roach88/agreements/internal/metrics"
	"github.com/roach88/agreements/internal/store"
	"github.com/roach88/agreements/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var alice = testutil.User(2, "alice", 10)

// recordingSink collects enqueued messages. It refuses everything after
// limit messages when limit > 0.
type recordingSink struct {
	mu    sync.Mutex
	got   []ir.Message
	limit int
}

func (s *recordingSink) Enqueue(msg ir.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && len(s.got) >= s.limit {
		return false
	}
	s.got = append(s.got, msg)
	return true
}

func (s *recordingSink) ids() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.got))
	for _, m := range s.got {
		ids = append(ids, m.ID)
	}
	return ids
}

type fixture struct {
	poller  *Poller
	store   *store.Store
	gw      *gateway.Memory
	sink    *recordingSink
	metrics *metrics.Collector
}

func setupTestPoller(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	gw := gateway.NewMemory(testutil.EngineUser.ID)
	sink := &recordingSink{}
	collector := metrics.NewCollector("")
	opts = append([]Option{
		WithMetrics(collector),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)

	return &fixture{
		poller:  New(gw, s, sink, opts...),
		store:   s,
		gw:      gw,
		sink:    sink,
		metrics: collector,
	}
}

func TestRunOnce_ForwardsInOrderAndAdvancesCursor(t *testing.T) {
	f := setupTestPoller(t)
	ctx := context.Background()
	f.gw.Post(
		testutil.Mention(30, alice, "@AgreementEngine balance"),
		testutil.Mention(10, alice, "@AgreementEngine generate"),
		testutil.Mention(20, alice, "@AgreementEngine reputation"),
	)

	processed, lastSeen, err := f.poller.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, processed)
	assert.Equal(t, int64(30), lastSeen)
	assert.Equal(t, []int64{10, 20, 30}, f.sink.ids())

	cursor, err := f.poller.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(30), cursor)
}

func TestRunOnce_OnlyNewMentions(t *testing.T) {
	f := setupTestPoller(t)
	ctx := context.Background()
	f.gw.Post(testutil.Mention(10, alice, "@AgreementEngine generate"))

	_, _, err := f.poller.RunOnce(ctx)
	require.NoError(t, err)

	f.gw.Post(testutil.Mention(11, alice, "@AgreementEngine balance"))
	processed, lastSeen, err := f.poller.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, int64(11), lastSeen)
	assert.Equal(t, []int64{10, 11}, f.sink.ids())
}

func TestRunOnce_NoMentions(t *testing.T) {
	f := setupTestPoller(t)

	processed, lastSeen, err := f.poller.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Zero(t, lastSeen)
	assert.Empty(t, f.sink.ids())
}

func TestRunOnce_SkipsArchivedStatuses(t *testing.T) {
	f := setupTestPoller(t)
	ctx := context.Background()

	handled := testutil.Mention(10, alice, "@AgreementEngine generate")
	created, err := f.store.ArchiveStatus(ctx, ir.StatusOf(handled))
	require.NoError(t, err)
	require.True(t, created)

	f.gw.Post(handled, testutil.Mention(11, alice, "@AgreementEngine balance"))

	processed, lastSeen, err := f.poller.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, int64(11), lastSeen)
	assert.Equal(t, []int64{11}, f.sink.ids())

	expected := `
# HELP agreements_ingest_duplicates_total Re-delivered messages skipped
# TYPE agreements_ingest_duplicates_total counter
agreements_ingest_duplicates_total 1
# HELP agreements_ingest_messages_total Messages handed to the engine
# TYPE agreements_ingest_messages_total counter
agreements_ingest_messages_total 1
`
	require.NoError(t, promtestutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected),
		"agreements_ingest_duplicates_total", "agreements_ingest_messages_total"))
}

func TestRunOnce_GatewayFailureKeepsCursor(t *testing.T) {
	f := setupTestPoller(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetMeta(ctx, store.MetaLastStatusParsed, "5"))

	boom := errors.New("rate limited")
	f.gw.FailMentions(boom)

	processed, lastSeen, err := f.poller.RunOnce(ctx)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, processed)
	assert.Equal(t, int64(5), lastSeen)

	cursor, err := f.poller.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), cursor)

	expected := `
# HELP agreements_ingest_polls_total Mention polls, by result
# TYPE agreements_ingest_polls_total counter
agreements_ingest_polls_total{result="error"} 1
`
	require.NoError(t, promtestutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected),
		"agreements_ingest_polls_total"))
}

func TestRunOnce_SinkClosedStopsAtLastAccepted(t *testing.T) {
	f := setupTestPoller(t)
	ctx := context.Background()
	f.sink.limit = 1
	f.gw.Post(
		testutil.Mention(10, alice, "@AgreementEngine generate"),
		testutil.Mention(11, alice, "@AgreementEngine balance"),
	)

	processed, lastSeen, err := f.poller.RunOnce(ctx)
	require.ErrorIs(t, err, ErrSinkClosed)
	assert.Equal(t, 1, processed)
	assert.Equal(t, int64(10), lastSeen)

	cursor, err := f.poller.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), cursor)
}

func TestCursor_RejectsGarbage(t *testing.T) {
	f := setupTestPoller(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetMeta(ctx, store.MetaLastStatusParsed, "tweet"))

	_, err := f.poller.Cursor(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an id")
}

func TestStart_PollsOnSchedule(t *testing.T) {
	f := setupTestPoller(t, WithSchedule("@every 1s"))
	f.gw.Post(testutil.Mention(10, alice, "@AgreementEngine generate"))

	require.NoError(t, f.poller.Start(context.Background()))
	assert.True(t, f.poller.IsRunning())

	require.Eventually(t, func() bool {
		return len(f.sink.ids()) == 1
	}, 5*time.Second, 50*time.Millisecond)

	f.poller.Stop()
	assert.False(t, f.poller.IsRunning())
}

func TestStart_Twice(t *testing.T) {
	f := setupTestPoller(t)

	require.NoError(t, f.poller.Start(context.Background()))
	t.Cleanup(f.poller.Stop)

	err := f.poller.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestStart_BadSchedule(t *testing.T) {
	f := setupTestPoller(t, WithSchedule("whenever"))

	err := f.poller.Start(context.Background())
	require.Error(t, err)
	assert.False(t, f.poller.IsRunning())
}

func TestStop_WhenNotRunning(t *testing.T) {
	f := setupTestPoller(t)
	f.poller.Stop()
	assert.False(t, f.poller.IsRunning())
}
