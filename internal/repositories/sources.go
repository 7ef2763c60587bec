package repositories

import (
	"context"
	"errors"
	"fmt"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
	"time"
)

type Sources struct {
	db    *gorm.DB
	cache *gocache.Cache
}

func NewSourcesRepository(db *gorm.DB) *Sources {
	return &Sources{db: db, cache: gocache.New(5*time.Minute, 10*time.Minute)}
}

// GetByCode resolves a registered source. Unknown codes are an error:
// sources are registered at startup from configuration.
func (repo *Sources) GetByCode(ctx context.Context, code string) (*models.Source, error) {
	if value, found := repo.cache.Get(code); found {
		source := value.(models.Source)
		return &source, nil
	}

	var source models.Source
	if err := repo.db.WithContext(ctx).First(&source, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("source %q is not registered", code)
		}
		return nil, err
	}
	repo.cache.SetDefault(code, source)
	return &source, nil
}

func (repo *Sources) All(ctx context.Context) ([]models.Source, error) {
	var sources []models.Source
	err := repo.db.WithContext(ctx).Order("id").Find(&sources).Error
	return sources, err
}

// HighYieldIDs returns ids of sources flagged as high-yield.
func (repo *Sources) HighYieldIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := repo.db.WithContext(ctx).Model(&models.Source{}).Where("high_yield = ?", true).Pluck("id", &ids).Error
	return ids, err
}
