package dedup

import (
	"fmt"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
)

// batchIndex remembers the accepted candidates of one batch so later
// candidates can be matched against them without a store round trip.
type batchIndex struct {
	externalIDs map[string]struct{}
	urls        map[string]struct{}
	hashes      map[string]struct{}
	byCompany   map[string][]models.Job
}

func newBatchIndex() *batchIndex {
	return &batchIndex{
		externalIDs: make(map[string]struct{}),
		urls:        make(map[string]struct{}),
		hashes:      make(map[string]struct{}),
		byCompany:   make(map[string][]models.Job),
	}
}

func (b *batchIndex) add(job models.Job) {
	b.externalIDs[sourceKey(job.SourceID, job.ExternalID)] = struct{}{}
	if job.NormalizedURL != "" {
		b.urls[sourceKey(job.SourceID, job.NormalizedURL)] = struct{}{}
	}
	if job.Hash != "" {
		b.hashes[job.Hash] = struct{}{}
	}
	if job.NormalizedCompany != "" {
		b.byCompany[job.NormalizedCompany] = append(b.byCompany[job.NormalizedCompany], job)
	}
}

func (b *batchIndex) match(d *Deduplicator, job models.Job) (Verdict, bool) {
	if _, ok := b.externalIDs[sourceKey(job.SourceID, job.ExternalID)]; ok {
		return Verdict{Kind: Duplicate, Stage: StageExternalID}, true
	}
	if _, ok := b.urls[sourceKey(job.SourceID, job.NormalizedURL)]; ok && job.NormalizedURL != "" {
		return Verdict{Kind: Duplicate, Stage: StageURL}, true
	}
	if _, ok := b.hashes[job.Hash]; ok && job.Hash != "" {
		return Verdict{Kind: Duplicate, Stage: StageHash}, true
	}

	sameCompany := b.byCompany[job.NormalizedCompany]
	for i := range sameCompany {
		if d.ruleMatch(job, sameCompany[i]) {
			return Verdict{Kind: Duplicate, Stage: StageRule}, true
		}
	}
	if d.cfg.FuzzyEnabled {
		if best, similarity := d.closest(job, sameCompany); best != nil {
			return Verdict{Kind: Probable, Stage: StageFuzzy, Similarity: similarity}, true
		}
	}
	return Verdict{}, false
}

func sourceKey(sourceID uint, value string) string {
	return fmt.Sprintf("%d|%s", sourceID, value)
}
