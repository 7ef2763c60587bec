package models

import (
	"errors"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"strings"
	"time"
)

type ExperienceLevel string

const (
	ExperienceUnknown ExperienceLevel = ""
	Entry             ExperienceLevel = "entry"
	Mid               ExperienceLevel = "mid"
	Senior            ExperienceLevel = "senior"
	Leadership        ExperienceLevel = "leadership"
)

func ToExperienceLevel(s string) (ExperienceLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ExperienceUnknown, nil
	case string(Entry), "junior", "fresher":
		return Entry, nil
	case string(Mid), "middle", "intermediate":
		return Mid, nil
	case string(Senior):
		return Senior, nil
	case string(Leadership), "lead", "principal", "manager":
		return Leadership, nil
	default:
		return "", errors.New("invalid experience level")
	}
}

// YearsRange is the experience bucket of the level in years, inclusive.
func (e ExperienceLevel) YearsRange() (min, max int, ok bool) {
	switch e {
	case Entry:
		return 0, 2, true
	case Mid:
		return 2, 5, true
	case Senior:
		return 5, 10, true
	case Leadership:
		return 10, 30, true
	default:
		return 0, 0, false
	}
}

type RemoteType string

const (
	RemoteUnknown RemoteType = ""
	Remote        RemoteType = "remote"
	Hybrid        RemoteType = "hybrid"
	Onsite        RemoteType = "onsite"
)

func ToRemoteType(s string) (RemoteType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return RemoteUnknown, nil
	case string(Remote), "wfh", "work from home":
		return Remote, nil
	case string(Hybrid):
		return Hybrid, nil
	case string(Onsite), "on-site", "office", "in-office":
		return Onsite, nil
	default:
		return "", errors.New("invalid remote type")
	}
}

// SearchContext is what a searcher is looking for. It drives per-user scoring
// at ingestion time and ranking at query time. ExactTitle treats every
// keyword as a job title: exact title matches first, then titles containing
// one of them.
type SearchContext struct {
	Keywords         []string
	Skills           []string
	Location         string
	ExperienceLevel  ExperienceLevel
	RemotePreference RemoteType
	ExactTitle       bool
	Page             int
	PageSize         int
	UserID           string
}

func (c SearchContext) HasUser() bool {
	return c.UserID != ""
}

// SavedSearch is a user's persisted search. The scheduler periodically turns
// every saved search into a user-scoped fetch task.
type SavedSearch struct {
	ID              int
	UserID          string `gorm:"index;not null"`
	Keywords        datatypes.JSONSlice[string]
	Skills          datatypes.JSONSlice[string]
	Sources         datatypes.JSONSlice[string]
	Location        string
	ExperienceLevel ExperienceLevel
	RemoteType      RemoteType
	LastEnqueuedAt  *time.Time
	CreatedAt       time.Time
}

func NewSavedSearch(
	userID string,
	keywords []string,
	skills []string,
	location string,
	experience ExperienceLevel,
	remote RemoteType,
	sources []string,
) *SavedSearch {

	trimmed := lo.Compact(lo.Map(keywords, func(item string, _ int) string {
		return strings.TrimSpace(item)
	}))
	return &SavedSearch{
		UserID:          userID,
		Keywords:        datatypes.JSONSlice[string](trimmed),
		Skills:          datatypes.JSONSlice[string](lo.Uniq(skills)),
		Sources:         datatypes.JSONSlice[string](lo.Uniq(sources)),
		Location:        strings.TrimSpace(location),
		ExperienceLevel: experience,
		RemoteType:      remote,
	}
}

func (s *SavedSearch) Context() SearchContext {
	return SearchContext{
		Keywords:         s.Keywords,
		Skills:           s.Skills,
		Location:         s.Location,
		ExperienceLevel:  s.ExperienceLevel,
		RemotePreference: s.RemoteType,
		UserID:           s.UserID,
	}
}

// Task builds the fetch task refreshing this search. Sources fall back to
// the given defaults when the search does not restrict them.
func (s *SavedSearch) Task(defaultSources []string, maxResults int) FetchTask {
	sources := []string(s.Sources)
	if len(sources) == 0 {
		sources = defaultSources
	}
	userID := s.UserID
	return FetchTask{
		Sources: sources,
		Query: FetchQuery{
			Keywords:        s.Keywords,
			Location:        s.Location,
			ExperienceLevel: s.ExperienceLevel,
			RemoteType:      s.RemoteType,
			MaxResults:      maxResults,
			Skills:          s.Skills,
		},
		Since:  s.LastEnqueuedAt,
		UserID: &userID,
	}
}
