package repositories

import (
	"context"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"gorm.io/gorm"
	"time"
)

type Searches struct {
	db *gorm.DB
}

func NewSearchRepository(db *gorm.DB) *Searches {
	return &Searches{db: db}
}

func (repo *Searches) Add(ctx context.Context, search *models.SavedSearch) error {
	return repo.db.WithContext(ctx).Create(search).Error
}

func (repo *Searches) GetByUser(ctx context.Context, userID string) ([]models.SavedSearch, error) {

	var searches []models.SavedSearch
	if err := repo.db.WithContext(ctx).Order("id").Find(&searches, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return searches, nil
}

func (repo *Searches) GetCountByUser(ctx context.Context, userID string) (int64, error) {

	var count int64
	if err := repo.db.WithContext(ctx).Model(&models.SavedSearch{}).Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (repo *Searches) Get(ctx context.Context, limit int, offset int) ([]models.SavedSearch, error) {

	var searches []models.SavedSearch
	if err := repo.db.WithContext(ctx).
		Order("id").
		Limit(limit).
		Offset(offset).
		Find(&searches).Error; err != nil {
		return nil, err
	}
	return searches, nil
}

func (repo *Searches) MarkEnqueued(ctx context.Context, id int, at time.Time) error {
	return repo.db.WithContext(ctx).Model(&models.SavedSearch{}).Where("id = ?", id).
		Update("last_enqueued_at", at.UTC()).Error
}

func (repo *Searches) Remove(ctx context.Context, id int) error {
	return repo.db.WithContext(ctx).Delete(&models.SavedSearch{ID: id}).Error
}
