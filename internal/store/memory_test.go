package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/suggestbot/internal/model"
)

func strPtr(s string) *string { return &s }

func TestMemoryEnsureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	created, err := m.Ensure(ctx, 10)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = m.Ensure(ctx, 10)
	require.NoError(t, err)
	assert.False(t, created)

	u, err := m.Get(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), u.UserID)

	_, err = m.Get(ctx, 11)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryIDsAreDenseAndNeverReused(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	next, err := m.PeekNextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)

	id1, err := m.Insert(ctx, []model.Suggestion{{UserID: 1, MessID: 100}})
	require.NoError(t, err)
	id2, err := m.Insert(ctx, []model.Suggestion{{UserID: 1, MessID: 101}, {UserID: 1, MessID: 102}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, []int64{id1, id2})

	_, err = m.Extract(ctx, id2)
	require.NoError(t, err)

	id3, err := m.Insert(ctx, []model.Suggestion{{UserID: 1, MessID: 103}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id3, "extracted ids are not handed out again")
}

func TestMemoryConcurrentInsertsGetUniqueIDs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	const n = 50
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := m.Insert(ctx, []model.Suggestion{{UserID: 1, MessID: i}})
			assert.NoError(t, err)
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool, n)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "missing id %d", i)
	}
}

func TestMemoryExtractIsSingleConsumption(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.Insert(ctx, []model.Suggestion{{UserID: 1, MessID: 1}, {UserID: 1, MessID: 2}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := m.Extract(ctx, id)
			if err != nil {
				assert.ErrorIs(t, err, ErrNotFound)
			}
			results <- len(rows)
		}()
	}
	wg.Wait()
	close(results)

	var total, winners int
	for n := range results {
		total += n
		if n > 0 {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 2, total)
}

func TestMemoryBanBySuggestion(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	res, err := m.BanBySuggestion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, SuggestionNotFound, res)

	id, err := m.Insert(ctx, []model.Suggestion{{UserID: 5, MessID: 1}})
	require.NoError(t, err)

	res, err = m.BanBySuggestion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, UserNotFound, res)

	_, err = m.Ensure(ctx, 5)
	require.NoError(t, err)

	res, err = m.BanBySuggestion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Banned, res)
	first, _ := m.Get(ctx, 5)

	res, err = m.BanBySuggestion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, AlreadyBanned, res)
	second, _ := m.Get(ctx, 5)
	assert.Equal(t, first.Updated, second.Updated, "user row mutated once")

	rows, err := m.Peek(ctx, id)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "ban keeps the pending suggestion")

	banned, err := m.ListBanned(ctx)
	require.NoError(t, err)
	require.Len(t, banned, 1)
	assert.Equal(t, int64(5), banned[0].UserID)

	ok, err := m.Unban(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.Unban(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCaptionAndHelpMessage(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.Insert(ctx, []model.Suggestion{
		{UserID: 1, MessID: 1, FileID: strPtr("a"), Caption: strPtr("old")},
		{UserID: 1, MessID: 2, FileID: strPtr("b")},
	})
	require.NoError(t, err)

	ok, err := m.UpdateFirstCaption(ctx, id, "new", model.Entities{{Type: "bold", Length: 3}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetHelpMessage(ctx, id, 77)
	require.NoError(t, err)
	assert.True(t, ok)

	rows, err := m.Peek(ctx, id)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "new", rows[0].CaptionText())
	assert.Len(t, rows[0].Entities, 1)
	assert.Empty(t, rows[1].CaptionText())
	assert.Nil(t, rows[1].Entities)
	assert.Equal(t, 77, rows[1].HelpMessageID())

	ok, err = m.UpdateFirstCaption(ctx, 99, "x", nil)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = m.SetHelpMessage(ctx, 99, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := m.PurgeAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	_, err = m.Peek(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}
