package models

import (
	"strings"
	"time"
)

type FetchQuery struct {
	Keywords        []string        `json:"keywords"`
	Location        string          `json:"location"`
	ExperienceLevel ExperienceLevel `json:"experience_level" validate:"omitempty,oneof=entry mid senior leadership"`
	RemoteType      RemoteType      `json:"remote_type" validate:"omitempty,oneof=remote hybrid onsite"`
	MaxResults      int             `json:"max_results" validate:"gte=0,lte=1000"`
	Page            int             `json:"page" validate:"gte=0"`
	PageSize        int             `json:"page_size" validate:"gte=0,lte=100"`
	Skills          []string        `json:"skills"`
}

// WithLocation returns a copy of the query restricted to the given location.
func (q FetchQuery) WithLocation(location string) FetchQuery {
	q.Location = location
	return q
}

// FetchTask is the queue message asking workers to refresh sources.
type FetchTask struct {
	Sources []string   `json:"sources" validate:"required,min=1,dive,required"`
	Query   FetchQuery `json:"query"`
	Since   *time.Time `json:"since"`
	UserID  *string    `json:"user_id"`
}

// SearchContext returns the user context carried by the task, nil when the
// task is not user-scoped.
func (t FetchTask) SearchContext() *SearchContext {
	if t.UserID == nil || strings.TrimSpace(*t.UserID) == "" {
		return nil
	}
	return &SearchContext{
		Keywords:         t.Query.Keywords,
		Skills:           t.Query.Skills,
		Location:         t.Query.Location,
		ExperienceLevel:  t.Query.ExperienceLevel,
		RemotePreference: t.Query.RemoteType,
		UserID:           *t.UserID,
	}
}
