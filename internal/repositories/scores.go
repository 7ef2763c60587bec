package repositories

import (
	"context"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Scores struct {
	db *gorm.DB
}

func NewScoresRepository(db *gorm.DB) *Scores {
	return &Scores{db: db}
}

func (repo *Scores) WithTx(tx *gorm.DB) *Scores {
	return &Scores{db: tx}
}

// Upsert stores the latest score of a job for a user, replacing any earlier one.
func (repo *Scores) Upsert(ctx context.Context, score *models.UserJobScore) error {
	return repo.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_match_score", "match_components", "match_details", "updated_at"}),
	}).Create(score).Error
}

func (repo *Scores) Get(ctx context.Context, userID string, jobID uint) (*models.UserJobScore, error) {
	var scores []models.UserJobScore
	err := repo.db.WithContext(ctx).Where("user_id = ? AND job_id = ?", userID, jobID).Limit(1).Find(&scores).Error
	if err != nil || len(scores) == 0 {
		return nil, err
	}
	return &scores[0], nil
}
