package bootstrap

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/suggestbot/core/config"
	coredatabase "github.com/m3rciful/suggestbot/core/database"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunMemoryDriverSkipsDatabase(t *testing.T) {
	called := false
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   coredatabase.Config{Driver: coredatabase.DriverMemory},
		LoggerInit: noLogger,
		Connect: func(context.Context, coredatabase.Config) (*sqlx.DB, error) {
			called = true
			return nil, nil
		},
	})
	require.NoError(t, err)
	assert.Nil(t, res.DB)
	assert.False(t, called)
	assert.NoError(t, res.Close())
}

func TestRunConnectsAndMigrates(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "postgres")

	migrations := fstest.MapFS{"migrations/000001_init.up.sql": {Data: []byte("SELECT 1;")}}
	var gotDir string
	res, err := Run(context.Background(), Options{
		Config:        &coreconfig.Config{},
		Database:      coredatabase.Config{Host: "db", Name: "suggest"},
		Migrations:    migrations,
		MigrationsDir: "migrations",
		LoggerInit:    noLogger,
		Connect: func(_ context.Context, cfg coredatabase.Config) (*sqlx.DB, error) {
			assert.Equal(t, "5432", cfg.Port)
			return db, nil
		},
		Migrate: func(_ context.Context, _ coredatabase.Config, _ fs.FS, dir string) error {
			gotDir = dir
			return nil
		},
	})
	require.NoError(t, err)
	assert.Same(t, db, res.DB)
	assert.Equal(t, "migrations", gotDir)

	mock.ExpectClose()
	require.NoError(t, res.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunClosesDatabaseWhenMigrationFails(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	_, err = Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   coredatabase.Config{Host: "db", Name: "suggest"},
		Migrations: fstest.MapFS{},
		LoggerInit: noLogger,
		Connect: func(context.Context, coredatabase.Config) (*sqlx.DB, error) {
			return sqlx.NewDb(raw, "postgres"), nil
		},
		Migrate: func(context.Context, coredatabase.Config, fs.FS, string) error {
			return errors.New("dirty")
		},
	})
	require.ErrorContains(t, err, "migrations failed: dirty")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRequiresConfig(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	require.Error(t, err)
}
