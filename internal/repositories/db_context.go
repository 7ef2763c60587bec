package repositories

import (
	"context"
	"errors"
	"fmt"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/maxaizer/job-aggregator/internal/config"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"strings"
)

type DbContext struct {
	DB   *gorm.DB
	pool *pgxpool.Pool
}

// NewDbContext opens Postgres through a bounded pgx pool shared by every
// worker goroutine, or SQLite for any other connection string.
func NewDbContext(ctx context.Context, cfg config.DBConfig) (*DbContext, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	}

	if !isPostgres(cfg.ConnectionString) {
		db, err := gorm.Open(sqlite.Open(cfg.ConnectionString), gormConfig)
		if err != nil {
			return nil, err
		}
		return &DbContext{DB: db}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), gormConfig)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &DbContext{DB: db, pool: pool}, nil
}

func isPostgres(connectionString string) bool {
	return strings.HasPrefix(connectionString, "postgres://") ||
		strings.HasPrefix(connectionString, "postgresql://") ||
		strings.Contains(connectionString, "host=")
}

func (c *DbContext) Migrate() error {
	entities := []struct {
		name  string
		value any
	}{
		{"Source", models.Source{}},
		{"Company", models.Company{}},
		{"Job", models.Job{}},
		{"UserJobScore", models.UserJobScore{}},
		{"SavedSearch", models.SavedSearch{}},
		{"Checkpoint", models.Checkpoint{}},
	}
	for _, entity := range entities {
		if err := c.DB.AutoMigrate(entity.value); err != nil {
			return fmt.Errorf("failed to migrate %s entity: %w", entity.name, err)
		}
	}

	if c.DB.Dialector.Name() != "postgres" {
		return nil
	}

	if err := c.DB.Exec("CREATE INDEX IF NOT EXISTS idx_jobs_title_fts ON jobs USING GIN (to_tsvector('simple', title)); " +
		"CREATE INDEX IF NOT EXISTS idx_jobs_description_fts ON jobs USING GIN (to_tsvector('simple', coalesce(description, '')));").
		Error; err != nil {
		return fmt.Errorf("failed to create full-text indexes: %w", err)
	}

	return nil
}

// EnsureSources registers the configured sources, updating names and the
// high-yield flag of existing rows.
func (c *DbContext) EnsureSources(sources []config.SourceConfig) error {
	if len(sources) == 0 {
		return errors.New("no sources configured")
	}

	rows := make([]models.Source, 0, len(sources))
	for _, s := range sources {
		rows = append(rows, models.Source{Code: s.Code, DisplayName: s.DisplayName, HighYield: s.HighYield})
	}

	err := c.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "high_yield"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to register sources: %w", err)
	}
	return nil
}

func (c *DbContext) Close() error {
	db, err := c.DB.DB()
	if err != nil {
		return err
	}

	err = db.Close()
	if c.pool != nil {
		c.pool.Close()
	}
	return err
}
