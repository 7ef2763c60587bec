// Package dedup decides whether a canonical job is new, a duplicate of a
// stored job or a probable duplicate. Stages run cheapest first and the
// first hit wins.
package dedup

import (
	"context"
	"fmt"
	"github.com/agnivade/levenshtein"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/maxaizer/job-aggregator/internal/geo"
	"strings"
	"time"
)

type Kind string

const (
	New       Kind = "new"
	Duplicate Kind = "duplicate"
	Probable  Kind = "probable"
)

type Stage string

const (
	StageNone       Stage = ""
	StageExternalID Stage = "external_id"
	StageURL        Stage = "url"
	StageHash       Stage = "content_hash"
	StageRule       Stage = "rule"
	StageFuzzy      Stage = "fuzzy"
)

type ProbablePolicy string

const (
	KeepProbable    ProbablePolicy = "keep"
	DiscardProbable ProbablePolicy = "discard"
)

// Verdict names the stage that matched and the job it matched. MatchedJobID
// is zero when the match was an earlier candidate of the same batch.
type Verdict struct {
	Kind         Kind
	Stage        Stage
	MatchedJobID uint
	Similarity   float64
}

func (v Verdict) String() string {
	if v.Kind == New {
		return string(New)
	}
	return fmt.Sprintf("%s(%s->%d)", v.Kind, v.Stage, v.MatchedJobID)
}

// Insertable reports whether a candidate with this verdict should be stored
// as a separate row under the given policy.
func (v Verdict) Insertable(policy ProbablePolicy) bool {
	switch v.Kind {
	case New:
		return true
	case Probable:
		return policy != DiscardProbable
	default:
		return false
	}
}

type Store interface {
	FindByExternalID(ctx context.Context, sourceID uint, externalID string) (*models.Job, error)
	FindByURL(ctx context.Context, sourceID uint, normalizedURL string) (*models.Job, error)
	FindByHash(ctx context.Context, hash string) (*models.Job, error)
	FindByCompanyTitle(ctx context.Context, company, title string) ([]models.Job, error)
	FindByCompany(ctx context.Context, company string, limit int) ([]models.Job, error)
}

type Config struct {
	RuleWindow      time.Duration
	FuzzyEnabled    bool
	FuzzyThreshold  float64
	FuzzyCandidates int
	ProbablePolicy  ProbablePolicy
}

func DefaultConfig() Config {
	return Config{
		RuleWindow:      14 * 24 * time.Hour,
		FuzzyEnabled:    true,
		FuzzyThreshold:  0.8,
		FuzzyCandidates: 50,
		ProbablePolicy:  KeepProbable,
	}
}

type Deduplicator struct {
	store Store
	cfg   Config
}

func NewDeduplicator(store Store, cfg Config) *Deduplicator {
	defaults := DefaultConfig()
	if cfg.RuleWindow <= 0 {
		cfg.RuleWindow = defaults.RuleWindow
	}
	if cfg.FuzzyThreshold <= 0 || cfg.FuzzyThreshold > 1 {
		cfg.FuzzyThreshold = defaults.FuzzyThreshold
	}
	if cfg.FuzzyCandidates <= 0 {
		cfg.FuzzyCandidates = defaults.FuzzyCandidates
	}
	if cfg.ProbablePolicy == "" {
		cfg.ProbablePolicy = defaults.ProbablePolicy
	}
	return &Deduplicator{store: store, cfg: cfg}
}

func (d *Deduplicator) Policy() ProbablePolicy {
	return d.cfg.ProbablePolicy
}

// Check runs the cascade for one candidate against the store. The candidate
// must carry its SourceID and normalized fields.
func (d *Deduplicator) Check(ctx context.Context, job models.Job) (Verdict, error) {
	found, err := d.store.FindByExternalID(ctx, job.SourceID, job.ExternalID)
	if err != nil {
		return Verdict{}, fmt.Errorf("lookup by external id: %w", err)
	}
	if found != nil {
		return duplicateOf(StageExternalID, found.ID), nil
	}

	if job.NormalizedURL != "" {
		found, err = d.store.FindByURL(ctx, job.SourceID, job.NormalizedURL)
		if err != nil {
			return Verdict{}, fmt.Errorf("lookup by url: %w", err)
		}
		if found != nil {
			return duplicateOf(StageURL, found.ID), nil
		}
	}

	if job.Hash != "" {
		found, err = d.store.FindByHash(ctx, job.Hash)
		if err != nil {
			return Verdict{}, fmt.Errorf("lookup by hash: %w", err)
		}
		if found != nil {
			return duplicateOf(StageHash, found.ID), nil
		}
	}

	if job.NormalizedCompany != "" && job.NormalizedTitle != "" {
		sameTitle, err := d.store.FindByCompanyTitle(ctx, job.NormalizedCompany, job.NormalizedTitle)
		if err != nil {
			return Verdict{}, fmt.Errorf("lookup by company and title: %w", err)
		}
		for i := range sameTitle {
			if d.ruleMatch(job, sameTitle[i]) {
				return duplicateOf(StageRule, sameTitle[i].ID), nil
			}
		}
	}

	if d.cfg.FuzzyEnabled && job.NormalizedCompany != "" {
		candidates, err := d.store.FindByCompany(ctx, job.NormalizedCompany, d.cfg.FuzzyCandidates)
		if err != nil {
			return Verdict{}, fmt.Errorf("lookup by company: %w", err)
		}
		if best, similarity := d.closest(job, candidates); best != nil {
			return Verdict{Kind: Probable, Stage: StageFuzzy, MatchedJobID: best.ID, Similarity: similarity}, nil
		}
	}

	return Verdict{Kind: New}, nil
}

// Decision pairs a candidate with its verdict.
type Decision struct {
	Job     models.Job
	Verdict Verdict
}

type Partition struct {
	New       []Decision
	Duplicate []Decision
	Probable  []Decision
}

// Partition classifies a batch. Candidates are checked against the store and
// against every earlier candidate of the same batch.
func (d *Deduplicator) Partition(ctx context.Context, jobs []models.Job) (Partition, error) {
	var partition Partition
	batch := newBatchIndex()

	for _, job := range jobs {
		verdict, matched := batch.match(d, job)
		// a probable in-batch match still yields to a definite stored duplicate
		if !matched || verdict.Kind == Probable {
			stored, err := d.Check(ctx, job)
			if err != nil {
				return partition, err
			}
			if !matched || stored.Kind == Duplicate {
				verdict = stored
			}
		}

		decision := Decision{Job: job, Verdict: verdict}
		switch verdict.Kind {
		case Duplicate:
			partition.Duplicate = append(partition.Duplicate, decision)
		case Probable:
			partition.Probable = append(partition.Probable, decision)
			if verdict.Insertable(d.cfg.ProbablePolicy) {
				batch.add(job)
			}
		default:
			partition.New = append(partition.New, decision)
			batch.add(job)
		}
	}
	return partition, nil
}

func (d *Deduplicator) ruleMatch(candidate, stored models.Job) bool {
	if candidate.NormalizedCompany != stored.NormalizedCompany || candidate.NormalizedTitle != stored.NormalizedTitle {
		return false
	}
	if !sameLocation(candidate.Location, stored.Location) {
		return false
	}

	a, b := postingTime(candidate), postingTime(stored)
	if a.IsZero() || b.IsZero() {
		return false
	}
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= d.cfg.RuleWindow
}

func (d *Deduplicator) closest(candidate models.Job, stored []models.Job) (*models.Job, float64) {
	var best *models.Job
	bestSimilarity := 0.0
	for i := range stored {
		if stored[i].SourceID == candidate.SourceID && stored[i].ExternalID == candidate.ExternalID {
			continue
		}
		similarity := Similarity(candidate.NormalizedTitle, stored[i].NormalizedTitle)
		if similarity >= d.cfg.FuzzyThreshold && similarity > bestSimilarity {
			best, bestSimilarity = &stored[i], similarity
		}
	}
	return best, bestSimilarity
}

// Similarity is the normalized Levenshtein similarity in [0,1].
func Similarity(a, b string) float64 {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" && b == "" {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func sameLocation(a, b string) bool {
	if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return true
	}
	pa, pb := geo.Parse(a), geo.Parse(b)
	return pa.City != "" && pa.City == pb.City && pa.Country == pb.Country
}

func postingTime(job models.Job) time.Time {
	if job.PostedAt != nil {
		return *job.PostedAt
	}
	return job.ScrapedAt
}

func duplicateOf(stage Stage, id uint) Verdict {
	return Verdict{Kind: Duplicate, Stage: stage, MatchedJobID: id}
}
