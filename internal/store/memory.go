package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/m3rciful/suggestbot/internal/model"
)

// Memory is a process-local Store with the same semantics as Postgres.
type Memory struct {
	mu      sync.Mutex
	users   map[int64]*model.User
	rows    []model.Suggestion
	rowSeq  int64
	userSeq int64
	counter int64
	now     func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{users: make(map[int64]*model.User), now: time.Now}
}

func (m *Memory) Ensure(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; ok {
		return false, nil
	}
	m.userSeq++
	now := m.now()
	m.users[userID] = &model.User{ID: m.userSeq, UserID: userID, Created: now, Updated: now}
	return true, nil
}

func (m *Memory) Get(_ context.Context, userID int64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return *u, nil
}

func (m *Memory) BanBySuggestion(_ context.Context, suggestionID int64) (BanResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexes(suggestionID)
	if len(idx) == 0 {
		return SuggestionNotFound, nil
	}
	u, ok := m.users[m.rows[idx[0]].UserID]
	if !ok {
		return UserNotFound, nil
	}
	if u.IsBanned {
		return AlreadyBanned, nil
	}
	u.IsBanned = true
	u.Updated = m.now()
	return Banned, nil
}

func (m *Memory) Unban(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || !u.IsBanned {
		return false, nil
	}
	u.IsBanned = false
	u.Updated = m.now()
	return true, nil
}

func (m *Memory) ListBanned(_ context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for _, u := range m.users {
		if u.IsBanned {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *Memory) Insert(_ context.Context, rows []model.Suggestion) (int64, error) {
	if len(rows) == 0 {
		return 0, fmt.Errorf("store: insert: no rows")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	id := m.counter
	now := m.now()
	for _, r := range rows {
		m.rowSeq++
		r.ID = m.rowSeq
		r.SuggestionID = id
		r.Created, r.Updated = now, now
		r.Entities = append(model.Entities(nil), r.Entities...)
		m.rows = append(m.rows, r)
	}
	return id, nil
}

func (m *Memory) PeekNextID(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter + 1, nil
}

func (m *Memory) Extract(_ context.Context, suggestionID int64) ([]model.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Suggestion
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.SuggestionID == suggestionID {
			out = append(out, r)
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (m *Memory) Peek(_ context.Context, suggestionID int64) ([]model.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexes(suggestionID)
	if len(idx) == 0 {
		return nil, ErrNotFound
	}
	out := make([]model.Suggestion, 0, len(idx))
	for _, i := range idx {
		out = append(out, m.rows[i])
	}
	return out, nil
}

func (m *Memory) UpdateFirstCaption(_ context.Context, suggestionID int64, caption string, entities model.Entities) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexes(suggestionID)
	if len(idx) == 0 {
		return false, nil
	}
	first := &m.rows[idx[0]]
	first.Caption = &caption
	first.Entities = append(model.Entities(nil), entities...)
	first.Updated = m.now()
	return true, nil
}

func (m *Memory) SetHelpMessage(_ context.Context, suggestionID int64, msgID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexes(suggestionID)
	for _, i := range idx {
		help := msgID
		m.rows[i].HelpMessage = &help
	}
	return len(idx) > 0, nil
}

func (m *Memory) PurgeAll(_ context.Context) ([]model.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.rows
	m.rows = nil
	return out, nil
}

// indexes returns positions of a suggestion's rows in primary key order.
// Rows are appended with increasing ids, so slice order is key order.
func (m *Memory) indexes(suggestionID int64) []int {
	var idx []int
	for i, r := range m.rows {
		if r.SuggestionID == suggestionID {
			idx = append(idx, i)
		}
	}
	return idx
}
