package repositories

import (
	"context"
	"github.com/maxaizer/job-aggregator/internal/normalize"
	gocache "github.com/patrickmn/go-cache"
	"time"
)

type companyRepository interface {
	GetOrCreate(ctx context.Context, name string) (*uint, error)
}

// CachedCompanies remembers resolved company ids. Company rows are never
// deleted, so a cached id stays valid for the process lifetime.
type CachedCompanies struct {
	repo  companyRepository
	cache *gocache.Cache
}

func NewCachedCompanies(repo companyRepository) *CachedCompanies {
	return &CachedCompanies{repo: repo, cache: gocache.New(30*time.Minute, time.Hour)}
}

func (c CachedCompanies) GetOrCreate(ctx context.Context, name string) (*uint, error) {
	key := normalize.CompanyKey(name)
	if value, found := c.cache.Get(key); found {
		id := value.(uint)
		return &id, nil
	}

	id, err := c.repo.GetOrCreate(ctx, name)
	if err == nil && id != nil {
		c.cache.SetDefault(key, *id)
	}
	return id, err
}
