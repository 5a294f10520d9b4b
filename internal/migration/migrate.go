package migration

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	// Blank import required for MySQL driver registration for migrations
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/database"
	"erp-sync-service/internal/store/migrations"
)

// Migrator is the subset of migrate.Migrate used here.
type Migrator interface {
	Up() error
	Close() (error, error)
}

// MigrationEngine builds a Migrator so tests never touch a real database.
type MigrationEngine func(source fs.FS, databaseURL string) (Migrator, error)

type Migration struct {
	cfg    config.DatabaseConnection
	source fs.FS
	engine MigrationEngine
}

func NewMigration(cfg config.DatabaseConnection, engine MigrationEngine) *Migration {
	if engine == nil {
		engine = DefaultEngine
	}
	return &Migration{
		cfg:    cfg,
		source: migrations.FS,
		engine: engine,
	}
}

// DefaultEngine reads the embedded schema and applies it through the mysql driver.
func DefaultEngine(source fs.FS, databaseURL string) (Migrator, error) {
	d, err := iofs.New(source, ".")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	return migrate.NewWithSourceInstance("iofs", d, databaseURL)
}

// DatabaseURL is the golang-migrate form of the storage DSN.
func DatabaseURL(cfg config.DatabaseConnection) string {
	return "mysql://" + database.DSN(cfg)
}

// Up applies every pending migration. Having nothing to apply is not an error.
func (mg *Migration) Up() (err error) {
	m, err := mg.engine(mg.source, DatabaseURL(mg.cfg))
	if err != nil {
		return err
	}
	defer func() {
		serr, dberr := m.Close()
		if serr != nil {
			if err != nil {
				err = fmt.Errorf("%w; migration source error: %v", err, serr)
			} else {
				err = serr
			}
		}
		if dberr != nil {
			if err != nil {
				err = fmt.Errorf("%w; migration database error: %v", err, dberr)
			} else {
				err = dberr
			}
		}
	}()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up: %w", err)
	}
	return nil
}
