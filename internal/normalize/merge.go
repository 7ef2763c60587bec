package normalize

import (
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"strings"
)

// Merge enriches a stored job with a re-fetched or duplicate record. It never
// replaces a non-empty value with an empty one and the longer description
// always wins. The stored job's identity is kept, including the content hash
// it was first seen with, so later copies of that listing still match it.
func Merge(existing, incoming models.Job) models.Job {
	merged := existing
	sameListing := existing.SourceID == incoming.SourceID && existing.ExternalID == incoming.ExternalID

	if sameListing && incoming.Title != "" {
		merged.Title = incoming.Title
		merged.NormalizedTitle = incoming.NormalizedTitle
	}
	if merged.NormalizedCompany == "" {
		merged.NormalizedCompany = incoming.NormalizedCompany
	}
	if merged.CompanyID == nil {
		merged.CompanyID = incoming.CompanyID
	}

	merged.Location = nonEmpty(incoming.Location, existing.Location)
	if len([]rune(incoming.Description)) > len([]rune(existing.Description)) {
		merged.Description = incoming.Description
	}
	if merged.URL == "" || sameListing && incoming.URL != "" {
		merged.URL = nonEmpty(incoming.URL, existing.URL)
		merged.NormalizedURL = nonEmpty(incoming.NormalizedURL, existing.NormalizedURL)
	}

	if merged.PostedAt == nil {
		merged.PostedAt = incoming.PostedAt
	}
	merged.MinSalary = firstSet(incoming.MinSalary, existing.MinSalary)
	merged.MaxSalary = firstSet(incoming.MaxSalary, existing.MaxSalary)
	merged.Currency = nonEmpty(incoming.Currency, existing.Currency)
	merged.ExperienceMin = firstSet(incoming.ExperienceMin, existing.ExperienceMin)
	merged.ExperienceMax = firstSet(incoming.ExperienceMax, existing.ExperienceMax)
	merged.EmploymentType = nonEmpty(incoming.EmploymentType, existing.EmploymentType)
	if incoming.RemoteType != models.RemoteUnknown {
		merged.RemoteType = incoming.RemoteType
	}
	merged.Skills = Skills(append(append([]string{}, existing.Skills...), incoming.Skills...))

	if incoming.ScrapedAt.After(merged.ScrapedAt) {
		merged.ScrapedAt = incoming.ScrapedAt
	}
	merged.IsActive = true
	if merged.Hash == "" {
		merged.Hash = ContentHash(merged.NormalizedTitle, merged.NormalizedCompany, merged.Location, merged.Description)
	}
	return merged
}

func nonEmpty(preferred, fallback string) string {
	if strings.TrimSpace(preferred) != "" {
		return preferred
	}
	return fallback
}

func firstSet[T any](preferred, fallback *T) *T {
	if preferred != nil {
		return preferred
	}
	return fallback
}
