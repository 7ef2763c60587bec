package repositories

import (
	"context"
	"errors"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"gorm.io/gorm"
	"time"
)

// Checkpoints persists named timestamps such as the last successful run
// of a scheduled job.
type Checkpoints struct {
	db *gorm.DB
}

func NewCheckpointsRepository(db *gorm.DB) *Checkpoints {
	return &Checkpoints{db: db}
}

func (repo *Checkpoints) Save(ctx context.Context, key string, at time.Time) error {
	return repo.db.WithContext(ctx).Save(&models.Checkpoint{Name: key, At: at.UTC()}).Error
}

func (repo *Checkpoints) Load(ctx context.Context, key string) (*time.Time, error) {
	checkpoint := &models.Checkpoint{}
	err := repo.db.WithContext(ctx).First(checkpoint, "name = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &checkpoint.At, nil
}

func (repo *Checkpoints) Remove(ctx context.Context, key string) error {
	return repo.db.WithContext(ctx).Delete(&models.Checkpoint{}, "name = ?", key).Error
}
