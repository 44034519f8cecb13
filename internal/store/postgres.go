package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/suggestbot/internal/model"
)

const counterName = "suggestion_id"

const suggestionColumns = `id, user_id, mess_id, suggestion_id, file_id, caption, help_message, entities, created, updated`

// Postgres is the sqlx backed Store.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// withTx runs fn in a transaction, committing on success and rolling back on error or panic.
func (p *Postgres) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

func (p *Postgres) Ensure(ctx context.Context, userID int64) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`INSERT INTO users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return false, fmt.Errorf("store: ensure user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: ensure user: %w", err)
	}
	return n == 1, nil
}

func (p *Postgres) Get(ctx context.Context, userID int64) (model.User, error) {
	var u model.User
	err := p.db.GetContext(ctx, &u,
		`SELECT id, user_id, is_banned, created, updated FROM users WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("store: get user: %w", err)
	}
	return u, nil
}

func (p *Postgres) BanBySuggestion(ctx context.Context, suggestionID int64) (BanResult, error) {
	var result BanResult
	err := p.withTx(ctx, func(tx *sqlx.Tx) error {
		var owner int64
		err := tx.GetContext(ctx, &owner,
			`SELECT user_id FROM suggestions WHERE suggestion_id = $1 ORDER BY id LIMIT 1`, suggestionID)
		if errors.Is(err, sql.ErrNoRows) {
			result = SuggestionNotFound
			return nil
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE users SET is_banned = TRUE, updated = now() WHERE user_id = $1 AND NOT is_banned`, owner)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 1 {
			result = Banned
			return nil
		}

		var banned bool
		err = tx.GetContext(ctx, &banned, `SELECT is_banned FROM users WHERE user_id = $1`, owner)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			result = UserNotFound
			return nil
		case err != nil:
			return err
		}
		result = AlreadyBanned
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: ban by suggestion: %w", err)
	}
	return result, nil
}

func (p *Postgres) Unban(ctx context.Context, userID int64) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE users SET is_banned = FALSE, updated = now() WHERE user_id = $1 AND is_banned`, userID)
	if err != nil {
		return false, fmt.Errorf("store: unban: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: unban: %w", err)
	}
	return n > 0, nil
}

func (p *Postgres) ListBanned(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := p.db.SelectContext(ctx, &users,
		`SELECT id, user_id, is_banned, created, updated FROM users WHERE is_banned ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list banned: %w", err)
	}
	return users, nil
}

func (p *Postgres) Insert(ctx context.Context, rows []model.Suggestion) (int64, error) {
	if len(rows) == 0 {
		return 0, fmt.Errorf("store: insert: no rows")
	}
	var id int64
	err := p.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &id,
			`UPDATE suggestion_counter SET value = value + 1 WHERE name = $1 RETURNING value`, counterName); err != nil {
			return fmt.Errorf("next id: %w", err)
		}
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO suggestions (user_id, mess_id, suggestion_id, file_id, caption, entities) VALUES ($1, $2, $3, $4, $5, $6)`,
				r.UserID, r.MessID, id, r.FileID, r.Caption, r.Entities,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: insert: %w", err)
	}
	return id, nil
}

func (p *Postgres) PeekNextID(ctx context.Context) (int64, error) {
	var next int64
	err := p.db.GetContext(ctx, &next,
		`SELECT value + 1 FROM suggestion_counter WHERE name = $1`, counterName)
	if err != nil {
		return 0, fmt.Errorf("store: peek next id: %w", err)
	}
	return next, nil
}

func (p *Postgres) Extract(ctx context.Context, suggestionID int64) ([]model.Suggestion, error) {
	var rows []model.Suggestion
	err := p.withTx(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows,
			`DELETE FROM suggestions WHERE suggestion_id = $1 RETURNING `+suggestionColumns, suggestionID)
	})
	if err != nil {
		return nil, fmt.Errorf("store: extract: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	sortRows(rows)
	return rows, nil
}

func (p *Postgres) Peek(ctx context.Context, suggestionID int64) ([]model.Suggestion, error) {
	var rows []model.Suggestion
	err := p.db.SelectContext(ctx, &rows,
		`SELECT `+suggestionColumns+` FROM suggestions WHERE suggestion_id = $1 ORDER BY id`, suggestionID)
	if err != nil {
		return nil, fmt.Errorf("store: peek: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows, nil
}

func (p *Postgres) UpdateFirstCaption(ctx context.Context, suggestionID int64, caption string, entities model.Entities) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE suggestions SET caption = $2, entities = $3, updated = now() WHERE id = (SELECT MIN(id) FROM suggestions WHERE suggestion_id = $1)`,
		suggestionID, caption, entities)
	if err != nil {
		return false, fmt.Errorf("store: update caption: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: update caption: %w", err)
	}
	return n > 0, nil
}

func (p *Postgres) SetHelpMessage(ctx context.Context, suggestionID int64, msgID int) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE suggestions SET help_message = $2, updated = now() WHERE suggestion_id = $1`,
		suggestionID, msgID)
	if err != nil {
		return false, fmt.Errorf("store: set help message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: set help message: %w", err)
	}
	return n > 0, nil
}

func (p *Postgres) PurgeAll(ctx context.Context) ([]model.Suggestion, error) {
	var rows []model.Suggestion
	err := p.withTx(ctx, func(tx *sqlx.Tx) error {
		return tx.SelectContext(ctx, &rows, `DELETE FROM suggestions RETURNING `+suggestionColumns)
	})
	if err != nil {
		return nil, fmt.Errorf("store: purge: %w", err)
	}
	sortRows(rows)
	return rows, nil
}

func sortRows(rows []model.Suggestion) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
}
