package db

import (
	"embed"
	"path"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/teranos/mend/errors"
)

const migrationDir = "sqlite/migrations"

// Migrations are written in the SQL subset shared by sqlite and postgres.
//
//go:embed sqlite/migrations/*.sql
var migrations embed.FS

// migration is one embedded schema file. Its version is the numeric prefix
// of the file name.
type migration struct {
	file    string
	version string
}

// Migrate brings the schema up to date. Each file runs in its own
// transaction together with its schema_migrations row. A nil logger
// migrates silently.
func Migrate(db *sqlx.DB, logger *zap.SugaredLogger) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	all, err := listMigrations()
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range all {
		done, err := isApplied(db, m)
		if err != nil {
			return err
		}
		if done {
			logger.Debugw("Migration already recorded", "migration", m.file)
			continue
		}
		logger.Infow("Applying schema migration", "migration", m.file, "version", m.version)
		if err := apply(db, m); err != nil {
			return err
		}
		applied++
	}

	logger.Infow("Schema up to date", "known", len(all), "applied", applied)
	return nil
}

func listMigrations() ([]migration, error) {
	entries, err := migrations.ReadDir(migrationDir)
	if err != nil {
		return nil, errors.Wrap(err, "list embedded migrations")
	}
	var out []migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		version, _, _ := strings.Cut(name, "_")
		out = append(out, migration{file: name, version: version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].file < out[j].file })
	return out, nil
}

// isApplied consults schema_migrations. The bootstrap migration 000 is the
// only one allowed to run before that table exists.
func isApplied(db *sqlx.DB, m migration) (bool, error) {
	var n int
	err := db.Get(&n, db.Rebind("SELECT COUNT(*) FROM schema_migrations WHERE version = ?"), m.version)
	if err == nil {
		return n > 0, nil
	}
	if m.version == "000" {
		return false, nil
	}
	return false, errors.Wrapf(err, "no schema_migrations table before %s", m.file)
}

func apply(db *sqlx.DB, m migration) (err error) {
	body, err := migrations.ReadFile(path.Join(migrationDir, m.file))
	if err != nil {
		return errors.Wrapf(err, "load migration %s", m.file)
	}

	tx, err := db.Beginx()
	if err != nil {
		return errors.Wrapf(err, "start migration %s", m.file)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(string(body)); err != nil {
		return errors.Wrapf(err, "run migration %s", m.file)
	}
	if _, err = tx.Exec(tx.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), m.version); err != nil {
		return errors.Wrapf(err, "mark migration %s", m.file)
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit migration %s", m.file)
	}
	return nil
}
