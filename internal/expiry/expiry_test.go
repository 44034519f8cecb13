package expiry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/m3rciful/suggestbot/core/metrics"
	"github.com/m3rciful/suggestbot/internal/registry"
	"github.com/m3rciful/suggestbot/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeDeleter struct {
	mu    sync.Mutex
	calls [][]int
	err   error
	done  chan struct{}
}

func newFakeDeleter() *fakeDeleter { return &fakeDeleter{done: make(chan struct{}, 8)} }

func (f *fakeDeleter) DeleteMessages(_ context.Context, _ int64, ids []int) error {
	f.mu.Lock()
	f.calls = append(f.calls, ids)
	f.mu.Unlock()
	f.done <- struct{}{}
	return f.err
}

func (f *fakeDeleter) snapshot() [][]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]int(nil), f.calls...)
}

type countingExtractor struct {
	*registry.Registry
	mu    sync.Mutex
	calls int
	done  chan struct{}
}

func (c *countingExtractor) Extract(ctx context.Context, id int64) ([]registry.Row, bool) {
	rows, ok := c.Registry.Extract(ctx, id)
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	c.done <- struct{}{}
	return rows, ok
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestFiringDeletesMirroredAndMenuMessages(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewMemory())
	id, err := reg.AddGroup(ctx, 1, []registry.Item{{MirroredID: 10, FileID: "a"}, {MirroredID: 11, FileID: "b"}}, "", nil)
	require.NoError(t, err)
	require.True(t, reg.AttachHelpMessage(ctx, id, 12))

	m, err := metrics.New()
	require.NoError(t, err)
	del := newFakeDeleter()
	s := New(Options{Registry: reg, Gateway: del, ChatID: 42, Metrics: m})
	defer s.Close()

	s.Schedule(id, []int{10, 11}, time.Now().Add(10*time.Millisecond))
	waitFor(t, del.done)

	assert.Equal(t, [][]int{{10, 11, 12}}, del.snapshot())
	_, ok := reg.Peek(ctx, id)
	assert.False(t, ok, "rows are consumed")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ExpiryFirings.WithLabelValues("expired")))
}

func TestFiringAfterModerationIsNoop(t *testing.T) {
	ctx := context.Background()
	ext := &countingExtractor{Registry: registry.New(store.NewMemory()), done: make(chan struct{}, 1)}
	id, err := ext.AddSingle(ctx, 1, 10)
	require.NoError(t, err)
	_, ok := ext.Registry.Extract(ctx, id)
	require.True(t, ok)

	del := newFakeDeleter()
	s := New(Options{Registry: ext, Gateway: del})
	defer s.Close()

	s.Schedule(id, []int{10}, time.Now())
	waitFor(t, ext.done)
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, del.snapshot())
	assert.Zero(t, s.Pending())
}

func TestGatewayFailureIsTolerated(t *testing.T) {
	ctx := context.Background()
	reg := registry.New(store.NewMemory())
	id, err := reg.AddSingle(ctx, 1, 10)
	require.NoError(t, err)

	del := newFakeDeleter()
	del.err = errors.New("message to delete not found")
	s := New(Options{Registry: reg, Gateway: del})
	defer s.Close()

	s.Schedule(id, []int{10}, time.Now())
	waitFor(t, del.done)
	assert.Len(t, del.snapshot(), 1)
}

func TestStopAndClose(t *testing.T) {
	del := newFakeDeleter()
	s := New(Options{Registry: registry.New(store.NewMemory()), Gateway: del, Retention: time.Hour})

	runAt := s.RunAt(time.Now())
	h1 := s.Schedule(1, []int{1}, runAt)
	s.Schedule(2, []int{2}, runAt)
	assert.Equal(t, 2, s.Pending())
	assert.NotEmpty(t, h1.ID())

	assert.True(t, h1.Stop())
	assert.False(t, h1.Stop())
	assert.Equal(t, 1, s.Pending())

	s.Close()
	assert.Zero(t, s.Pending())

	h3 := s.Schedule(3, nil, time.Now())
	assert.False(t, h3.Stop())
	assert.Zero(t, s.Pending())
	assert.Empty(t, del.snapshot())
}

func TestRunAt(t *testing.T) {
	s := New(Options{Retention: 47*time.Hour + 30*time.Second})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(47*time.Hour+30*time.Second), s.RunAt(now))
}

func TestMessageIDsDeduplicates(t *testing.T) {
	rows := []registry.Row{{MirroredID: 2, HelpMessageID: 9}, {MirroredID: 3, HelpMessageID: 9}}
	assert.Equal(t, []int{1, 2, 3, 9}, messageIDs([]int{1, 2}, rows))
	assert.Equal(t, []int{1}, messageIDs([]int{1, 0}, nil))
}
