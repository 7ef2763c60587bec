// Package scoring computes how well a job matches a searcher.
package scoring

import (
	"errors"
	"github.com/maxaizer/job-aggregator/internal/domain/errs"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"math"
	"time"
)

const (
	Keyword    = "keyword"
	Semantic   = "semantic"
	Skills     = "skills"
	Experience = "experience"
	Location   = "location"
	Recency    = "recency"
)

// neutral is used for a signal the searcher or the job gives no data for.
const neutral = 0.5

type Weights map[string]float64

func DefaultWeights() Weights {
	return Weights{
		Keyword:    0.30,
		Semantic:   0.10,
		Skills:     0.30,
		Experience: 0.12,
		Location:   0.10,
		Recency:    0.08,
	}
}

// strongThresholds mark a component as a strong match for the composite boost.
var strongThresholds = map[string]float64{
	Keyword:    0.7,
	Semantic:   0.7,
	Skills:     0.6,
	Experience: 0.8,
	Location:   0.9,
	Recency:    0.7,
}

const (
	boostPerStrong = 0.05
	maxBoost       = 0.15
)

type Result struct {
	Value      float64
	Components map[string]float64
	Details    Details
}

type Details struct {
	MatchedPhrases   []string `json:"matched_phrases,omitempty"`
	MatchedSkills    []string `json:"matched_skills,omitempty"`
	MissingSkills    []string `json:"missing_skills,omitempty"`
	SkillsFromText   bool     `json:"skills_from_text,omitempty"`
	LocationMatch    string   `json:"location_match,omitempty"`
	ExperienceBucket string   `json:"experience_bucket,omitempty"`
	RecencyProxy     bool     `json:"recency_proxy,omitempty"`
	StrongSignals    int      `json:"strong_signals"`
	Boost            float64  `json:"boost"`
}

type Engine struct {
	weights Weights
	now     func() time.Time
}

func NewEngine() *Engine {
	return &Engine{weights: DefaultWeights(), now: time.Now}
}

// Score always yields a value in [0,1]. Missing job or searcher data degrades
// the affected signal to a neutral or floor value; only a nil job is an error.
func (e *Engine) Score(job *models.Job, search models.SearchContext) (Result, error) {
	if job == nil {
		return Result{}, &errs.ScoringError{Err: errors.New("nil job")}
	}

	var details Details
	components := map[string]float64{
		Keyword:    keywordScore(job, search.Keywords, &details),
		Semantic:   semanticScore(job, search.Keywords),
		Skills:     skillsScore(job, search.Skills, &details),
		Experience: experienceScore(job, search.ExperienceLevel, &details),
		Location:   locationScore(job, search.Location, search.RemotePreference, &details),
		Recency:    e.recencyScore(job, &details),
	}

	total := 0.0
	for name, value := range components {
		value = clamp(value)
		components[name] = value
		total += e.weights[name] * value
	}

	for name, value := range components {
		if value >= strongThresholds[name] {
			details.StrongSignals++
		}
	}
	if details.StrongSignals >= 3 {
		details.Boost = math.Min(maxBoost, boostPerStrong*float64(details.StrongSignals-2))
		total *= 1 + details.Boost
	}

	return Result{Value: clamp(total), Components: components, Details: details}, nil
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
