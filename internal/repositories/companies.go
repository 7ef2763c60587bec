package repositories

import (
	"context"
	"errors"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/maxaizer/job-aggregator/internal/normalize"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Companies struct {
	db *gorm.DB
}

func NewCompaniesRepository(db *gorm.DB) *Companies {
	return &Companies{db: db}
}

func (repo *Companies) WithTx(tx *gorm.DB) *Companies {
	return &Companies{db: tx}
}

// GetOrCreate returns the id of the company with the given display name,
// inserting it on first sight. Names differing only in case or a trailing
// period resolve to the same row. An empty name yields nil.
func (repo *Companies) GetOrCreate(ctx context.Context, name string) (*uint, error) {
	key := normalize.CompanyKey(name)
	if key == "" {
		return nil, nil
	}

	company := models.Company{Name: normalize.Company(name), NormalizedName: key}
	err := repo.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "normalized_name"}}, DoNothing: true}).
		Create(&company).Error
	if err != nil {
		return nil, err
	}
	if company.ID != 0 {
		return &company.ID, nil
	}

	var existing models.Company
	if err = repo.db.WithContext(ctx).First(&existing, "normalized_name = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &existing.ID, nil
}
