package models

import (
	"gorm.io/datatypes"
	"time"
)

// RawRecord is a single provider listing exactly as a connector produced it.
type RawRecord struct {
	SourceCode     string
	ExternalID     string
	Title          string
	Company        string
	Location       string
	Description    string
	URL            string
	PostedAt       *time.Time
	MinSalary      *float64
	MaxSalary      *float64
	Currency       string
	ExperienceMin  *int
	ExperienceMax  *int
	EmploymentType string
	Remote         *bool
	Skills         []string
	Payload        map[string]any
}

type Source struct {
	ID          uint   `gorm:"primaryKey"`
	Code        string `gorm:"uniqueIndex;not null"`
	DisplayName string
	HighYield   bool
}

type Company struct {
	ID             uint   `gorm:"primaryKey"`
	Name           string `gorm:"not null"`
	NormalizedName string `gorm:"uniqueIndex;not null"`
	CreatedAt      time.Time
}

// Job is the canonical, deduplicated listing keyed by (source_id, external_id).
// Rows are enriched on every re-fetch and only ever soft-deleted via IsActive.
type Job struct {
	ID                uint   `gorm:"primaryKey"`
	SourceID          uint   `gorm:"uniqueIndex:idx_jobs_source_external;not null"`
	ExternalID        string `gorm:"uniqueIndex:idx_jobs_source_external;not null"`
	CompanyID         *uint  `gorm:"index"`
	Title             string `gorm:"not null"`
	NormalizedTitle   string `gorm:"index:idx_jobs_rule"`
	NormalizedCompany string `gorm:"index:idx_jobs_rule"`
	Description       string `gorm:"type:text"`
	Location          string
	URL               string
	NormalizedURL     string `gorm:"index"`
	PostedAt          *time.Time
	MinSalary         *float64
	MaxSalary         *float64
	Currency          string
	ExperienceMin     *int
	ExperienceMax     *int
	EmploymentType    string
	RemoteType        RemoteType
	Skills            datatypes.JSONSlice[string]
	Hash              string `gorm:"index;size:64"`
	ScrapedAt         time.Time
	IsActive          bool `gorm:"default:true;index"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasText reports whether there is anything to score the job against.
func (j *Job) HasText() bool {
	return j.Title != "" || j.Description != ""
}

type UserJobScore struct {
	ID              uint   `gorm:"primaryKey"`
	UserID          string `gorm:"uniqueIndex:idx_user_job;not null"`
	JobID           uint   `gorm:"uniqueIndex:idx_user_job;not null"`
	LastMatchScore  float64
	MatchComponents datatypes.JSONMap
	MatchDetails    datatypes.JSON
	UpdatedAt       time.Time
}

type LocationTier string

const (
	TierExact   LocationTier = "exact"
	TierCity    LocationTier = "city"
	TierCountry LocationTier = "country"
	TierOther   LocationTier = "other"
)

// Boost is the multiplicative ranking nudge for the tier.
func (t LocationTier) Boost() float64 {
	switch t {
	case TierExact:
		return 1.3
	case TierCity:
		return 1.2
	case TierCountry:
		return 1.1
	default:
		return 1.0
	}
}

// ScoredJob is one ranked search result.
type ScoredJob struct {
	Job
	CompanyName  string
	SourceCode   string
	Relevance    float64
	StoredScore  *float64
	LocationTier LocationTier
	Score        float64
}
