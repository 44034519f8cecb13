package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/suggestbot/internal/model"
)

func newPostgresWithMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgres(sqlx.NewDb(db, "postgres")), mock
}

var suggestionCols = []string{"id", "user_id", "mess_id", "suggestion_id", "file_id", "caption", "help_message", "entities", "created", "updated"}

func TestPostgresEnsure(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	q := `(?s)^INSERT\s+INTO\s+users\s*\(user_id\)\s*VALUES\s*\(\$1\)\s*ON\s+CONFLICT\s*\(user_id\)\s*DO\s+NOTHING$`
	mock.ExpectExec(q).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(q).WithArgs(int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := p.Ensure(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = p.Ensure(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestPostgresGetNotFound(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectQuery(`SELECT\s+id,\s*user_id,\s*is_banned.*FROM\s+users\s+WHERE\s+user_id\s*=\s*\$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "is_banned", "created", "updated"}))

	_, err := p.Get(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresInsertAssignsCounterID(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE\s+suggestion_counter\s+SET\s+value\s*=\s*value\s*\+\s*1\s+WHERE\s+name\s*=\s*\$1\s+RETURNING\s+value`).
		WithArgs(counterName).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(12)))
	ins := `INSERT\s+INTO\s+suggestions\s*\(user_id,\s*mess_id,\s*suggestion_id,\s*file_id,\s*caption,\s*entities\)`
	mock.ExpectExec(ins).
		WithArgs(int64(5), 100, int64(12), "file-a", "caption", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(ins).
		WithArgs(int64(5), 101, int64(12), "file-b", nil, nil).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	fileA, fileB, caption := "file-a", "file-b", "caption"
	id, err := p.Insert(context.Background(), []model.Suggestion{
		{UserID: 5, MessID: 100, FileID: &fileA, Caption: &caption, Entities: model.Entities{{Type: "bold", Length: 2}}},
		{UserID: 5, MessID: 101, FileID: &fileB},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
}

func TestPostgresInsertRollsBackOnFailure(t *testing.T) {
	p, mock := newPostgresWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE\s+suggestion_counter`).
		WithArgs(counterName).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(4)))
	mock.ExpectExec(`INSERT\s+INTO\s+suggestions`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := p.Insert(context.Background(), []model.Suggestion{{UserID: 1, MessID: 1}})
	require.ErrorContains(t, err, "store: insert: disk full")
}

func TestPostgresExtract(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	now := time.Now()

	q := `(?s)^DELETE\s+FROM\s+suggestions\s+WHERE\s+suggestion_id\s*=\s*\$1\s+RETURNING\s+id,`
	mock.ExpectBegin()
	mock.ExpectQuery(q).WithArgs(int64(9)).WillReturnRows(
		sqlmock.NewRows(suggestionCols).
			AddRow(int64(21), int64(5), 201, int64(9), "f2", nil, 300, nil, now, now).
			AddRow(int64(20), int64(5), 200, int64(9), "f1", "hello", 300, []byte(`[{"type":"bold","offset":0,"length":5}]`), now, now),
	)
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(q).WithArgs(int64(9)).WillReturnRows(sqlmock.NewRows(suggestionCols))
	mock.ExpectCommit()

	rows, err := p.Extract(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(20), rows[0].ID, "rows are ordered by primary key")
	assert.Equal(t, "hello", rows[0].CaptionText())
	require.Len(t, rows[0].Entities, 1)
	assert.Equal(t, "bold", rows[0].Entities[0].Type)
	assert.Equal(t, 300, rows[1].HelpMessageID())

	_, err = p.Extract(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresBanBySuggestion(t *testing.T) {
	owner := `SELECT\s+user_id\s+FROM\s+suggestions\s+WHERE\s+suggestion_id\s*=\s*\$1\s+ORDER\s+BY\s+id\s+LIMIT\s+1`
	flip := `UPDATE\s+users\s+SET\s+is_banned\s*=\s*TRUE.*WHERE\s+user_id\s*=\s*\$1\s+AND\s+NOT\s+is_banned`
	check := `SELECT\s+is_banned\s+FROM\s+users\s+WHERE\s+user_id\s*=\s*\$1`

	t.Run("banned", func(t *testing.T) {
		p, mock := newPostgresWithMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(owner).WithArgs(int64(3)).WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(50)))
		mock.ExpectExec(flip).WithArgs(int64(50)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := p.BanBySuggestion(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, Banned, res)
	})

	t.Run("already banned", func(t *testing.T) {
		p, mock := newPostgresWithMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(owner).WithArgs(int64(3)).WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(50)))
		mock.ExpectExec(flip).WithArgs(int64(50)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(check).WithArgs(int64(50)).WillReturnRows(sqlmock.NewRows([]string{"is_banned"}).AddRow(true))
		mock.ExpectCommit()

		res, err := p.BanBySuggestion(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, AlreadyBanned, res)
	})

	t.Run("user missing", func(t *testing.T) {
		p, mock := newPostgresWithMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(owner).WithArgs(int64(3)).WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(50)))
		mock.ExpectExec(flip).WithArgs(int64(50)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(check).WithArgs(int64(50)).WillReturnRows(sqlmock.NewRows([]string{"is_banned"}))
		mock.ExpectCommit()

		res, err := p.BanBySuggestion(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, UserNotFound, res)
	})

	t.Run("suggestion missing", func(t *testing.T) {
		p, mock := newPostgresWithMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(owner).WithArgs(int64(3)).WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
		mock.ExpectCommit()

		res, err := p.BanBySuggestion(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, SuggestionNotFound, res)
	})

	t.Run("store error", func(t *testing.T) {
		p, mock := newPostgresWithMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(owner).WithArgs(int64(3)).WillReturnError(errors.New("conn reset"))
		mock.ExpectRollback()

		_, err := p.BanBySuggestion(context.Background(), 3)
		require.ErrorContains(t, err, "conn reset")
	})
}

func TestPostgresUpdateFirstCaption(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	q := `UPDATE\s+suggestions\s+SET\s+caption\s*=\s*\$2,\s*entities\s*=\s*\$3.*WHERE\s+id\s*=\s*\(SELECT\s+MIN\(id\)\s+FROM\s+suggestions\s+WHERE\s+suggestion_id\s*=\s*\$1\)`
	mock.ExpectExec(q).WithArgs(int64(4), "new", nil).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(int64(5), "new", nil).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := p.UpdateFirstCaption(context.Background(), 4, "new", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.UpdateFirstCaption(context.Background(), 5, "new", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresPeekNextIDAndUnban(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	mock.ExpectQuery(`SELECT\s+value\s*\+\s*1\s+FROM\s+suggestion_counter\s+WHERE\s+name\s*=\s*\$1`).
		WithArgs(counterName).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(int64(8)))
	mock.ExpectExec(`UPDATE\s+users\s+SET\s+is_banned\s*=\s*FALSE.*WHERE\s+user_id\s*=\s*\$1\s+AND\s+is_banned`).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	next, err := p.PeekNextID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8), next)

	ok, err := p.Unban(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPostgresPurgeAll(t *testing.T) {
	p, mock := newPostgresWithMock(t)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)^DELETE\s+FROM\s+suggestions\s+RETURNING`).WillReturnRows(
		sqlmock.NewRows(suggestionCols).
			AddRow(int64(2), int64(1), 11, int64(1), nil, nil, 30, nil, now, now).
			AddRow(int64(1), int64(1), 10, int64(1), nil, nil, 30, nil, now, now),
	)
	mock.ExpectCommit()

	rows, err := p.PurgeAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 10, rows[0].MessID)
}
