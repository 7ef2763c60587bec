package repositories

import (
	"context"
	"errors"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"time"
)

type Jobs struct {
	db *gorm.DB
}

func NewJobsRepository(db *gorm.DB) *Jobs {
	return &Jobs{db: db}
}

// WithTx binds the repository to a transaction.
func (repo *Jobs) WithTx(tx *gorm.DB) *Jobs {
	return &Jobs{db: tx}
}

func (repo *Jobs) first(ctx context.Context, query any, args ...any) (*models.Job, error) {
	var job models.Job
	err := repo.db.WithContext(ctx).Where(query, args...).Order("id").First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (repo *Jobs) Get(ctx context.Context, id uint) (*models.Job, error) {
	return repo.first(ctx, "id = ?", id)
}

func (repo *Jobs) FindByExternalID(ctx context.Context, sourceID uint, externalID string) (*models.Job, error) {
	return repo.first(ctx, "source_id = ? AND external_id = ?", sourceID, externalID)
}

func (repo *Jobs) FindByURL(ctx context.Context, sourceID uint, normalizedURL string) (*models.Job, error) {
	return repo.first(ctx, "source_id = ? AND normalized_url = ?", sourceID, normalizedURL)
}

func (repo *Jobs) FindByHash(ctx context.Context, hash string) (*models.Job, error) {
	return repo.first(ctx, "hash = ?", hash)
}

func (repo *Jobs) FindByCompanyTitle(ctx context.Context, company, title string) ([]models.Job, error) {
	var jobs []models.Job
	err := repo.db.WithContext(ctx).
		Where("normalized_company = ? AND normalized_title = ?", company, title).
		Order("id").
		Find(&jobs).Error
	return jobs, err
}

func (repo *Jobs) FindByCompany(ctx context.Context, company string, limit int) ([]models.Job, error) {
	var jobs []models.Job
	err := repo.db.WithContext(ctx).
		Select("id", "source_id", "external_id", "normalized_title", "normalized_company").
		Where("normalized_company = ?", company).
		Order("scraped_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// LockForMerge loads a job for update. Postgres takes a row lock; SQLite
// serializes writers on its own.
func (repo *Jobs) LockForMerge(ctx context.Context, id uint) (*models.Job, error) {
	db := repo.db
	if db.Dialector.Name() == "postgres" {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var job models.Job
	if err := db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// InsertIfAbsent inserts the job unless (source_id, external_id) already
// exists. It reports whether a row was created.
func (repo *Jobs) InsertIfAbsent(ctx context.Context, job *models.Job) (bool, error) {
	res := repo.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}, {Name: "external_id"}},
		DoNothing: true,
	}).Create(job)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (repo *Jobs) Save(ctx context.Context, job *models.Job) error {
	return repo.db.WithContext(ctx).Save(job).Error
}

// DeactivateStale soft-deletes active jobs not seen since the given time.
func (repo *Jobs) DeactivateStale(ctx context.Context, notSeenSince time.Time) (int64, error) {
	res := repo.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("is_active = ? AND scraped_at < ?", true, notSeenSince).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

func (repo *Jobs) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := repo.db.WithContext(ctx).Model(&models.Job{}).Where("is_active = ?", true).Count(&count).Error
	return count, err
}
