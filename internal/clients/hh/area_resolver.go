package hh

import (
	"context"
	"github.com/maxaizer/job-aggregator/internal/geo"
	gocache "github.com/patrickmn/go-cache"
	"time"
)

const areasCacheKey = "areas"

type areaIndex struct {
	cities    map[string]string
	countries map[string]string
}

type areasGetter interface {
	GetAreas(ctx context.Context) ([]Area, error)
}

// AreaResolver maps free-text locations to hh area ids. The area tree is
// fetched once per day.
type AreaResolver struct {
	client areasGetter
	cache  *gocache.Cache
}

func NewAreaResolver(client areasGetter) *AreaResolver {
	return &AreaResolver{client: client, cache: gocache.New(24*time.Hour, time.Hour)}
}

// Resolve returns the most specific area id for the location: the city when
// known, otherwise the country. An empty id means hh has no such area.
func (r *AreaResolver) Resolve(ctx context.Context, location string) (string, error) {
	place := geo.Parse(location)
	if place.City == "" && place.Country == "" {
		return "", nil
	}

	index, err := r.index(ctx)
	if err != nil {
		return "", err
	}

	if id, ok := index.cities[place.City]; ok && place.City != "" {
		return id, nil
	}
	return index.countries[place.Country], nil
}

func (r *AreaResolver) index(ctx context.Context) (*areaIndex, error) {
	if value, found := r.cache.Get(areasCacheKey); found {
		return value.(*areaIndex), nil
	}

	areas, err := r.client.GetAreas(ctx)
	if err != nil {
		return nil, err
	}

	index := &areaIndex{cities: make(map[string]string), countries: make(map[string]string)}
	for _, area := range areas {
		if area.Name == area.Country {
			index.countries[geo.CanonicalCountry(area.Name)] = area.ID
			continue
		}
		city := geo.CanonicalCity(area.Name)
		if _, seen := index.cities[city]; !seen || area.Leaf {
			index.cities[city] = area.ID
		}
	}

	r.cache.SetDefault(areasCacheKey, index)
	return index, nil
}
