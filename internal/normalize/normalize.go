// Package normalize turns raw provider records into canonical jobs. Every
// function here is pure.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"github.com/maxaizer/job-aggregator/internal/domain/errs"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/maxaizer/job-aggregator/internal/geo"
	"github.com/samber/lo"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// HashDescriptionPrefix bounds how much of the description feeds the content hash.
const HashDescriptionPrefix = 1000

var (
	whitespace = regexp.MustCompile(`\s+`)

	postedAgo    = regexp.MustCompile(`(?i)\b(?:posted|reposted|updated)\s*:?\s*(?:\d+\+?|an?|one)\s*(?:minutes?|mins?|hours?|hrs?|days?|weeks?|months?)\s+ago\b`)
	postedWhen   = regexp.MustCompile(`(?i)\b(?:posted|reposted)\s*:?\s*(?:today|yesterday|just now)\b`)
	hiringBanner = regexp.MustCompile(`(?i)\b(?:actively hiring|urgently hiring|urgent hiring|easy apply|hot job|be an early applicant)\b`)
	trailingNew  = regexp.MustCompile(`(?i)[\s\-|·•]+new$`)

	trailingExperience = regexp.MustCompile(`(?i)[\s\-|,·•:]*[(\[]?\s*(?:exp(?:erience)?\s*:?\s*)?\d{1,2}\s*(?:(?:-|–|to)\s*\d{1,2}\s*)?\+?\s*(?:years?|yrs?)(?:\s+exp(?:erience)?)?\s*[)\]]?$`)
	trailingLocation   = regexp.MustCompile(`(?:\s+[-|@·•]\s+|\s*,\s*|\s*[(\[])([^-|@·•,()\[\]]+?)[)\]]?$`)
	edgePunctuation    = " -|,·•:;"

	companyTitleTail = regexp.MustCompile(`\s+[-|–]\s+.*$`)

	rangeYears  = regexp.MustCompile(`(?i)(\d{1,2})\s*(?:-|–|to)\s*(\d{1,2})\s*\+?\s*(?:years?|yrs?)`)
	plusYears   = regexp.MustCompile(`(?i)(\d{1,2})\s*\+\s*(?:years?|yrs?)`)
	singleYears = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:years?|yrs?)\b`)

	hybridWords = regexp.MustCompile(`(?i)\bhybrid\b`)
	remoteWords = regexp.MustCompile(`(?i)\b(?:remote|work from home|wfh|work from anywhere|fully distributed)\b`)
	onsiteWords = regexp.MustCompile(`(?i)\b(?:on-?site|in[- ]office|work from office|wfo)\b`)
)

// Title strips posting boilerplate and trailing experience/location fragments,
// collapses whitespace and lower-cases. It is idempotent.
func Title(text string) string {
	current := collapse(strings.ToLower(text))
	for {
		next := stripTitleOnce(current)
		if next == current {
			return current
		}
		current = next
	}
}

func stripTitleOnce(s string) string {
	s = postedAgo.ReplaceAllString(s, " ")
	s = postedWhen.ReplaceAllString(s, " ")
	s = hiringBanner.ReplaceAllString(s, " ")
	s = collapse(s)
	s = trailingNew.ReplaceAllString(s, "")
	s = trailingExperience.ReplaceAllString(s, "")

	if m := trailingLocation.FindStringSubmatchIndex(s); m != nil {
		fragment := s[m[2]:m[3]]
		// never strip the whole title down to nothing
		if geo.IsPlace(fragment) && m[0] > 0 {
			s = s[:m[0]]
		}
	}
	return collapse(strings.Trim(s, edgePunctuation))
}

// Company strips the "- Job Title" tails some providers append to the name.
func Company(text string) string {
	s := collapse(text)
	s = companyTitleTail.ReplaceAllString(s, "")
	return strings.Trim(s, edgePunctuation)
}

// CompanyKey is the exact-match identity of a company name.
func CompanyKey(text string) string {
	return strings.Trim(strings.ToLower(Company(text)), ".")
}

// URL canonicalizes a posting URL for identity comparison only: no query,
// no fragment, no trailing slash, lower-case scheme and host.
func URL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return strings.TrimRight(strings.ToLower(raw), "/")
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.RawQuery = ""
	parsed.ForceQuery = false
	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	parsed.RawPath = ""
	return parsed.String()
}

// ContentHash fingerprints the normalized fields. Only the first
// HashDescriptionPrefix runes of the description participate.
func ContentHash(normalizedTitle, normalizedCompany, location, description string) string {
	prefix := []rune(description)
	if len(prefix) > HashDescriptionPrefix {
		prefix = prefix[:HashDescriptionPrefix]
	}
	payload := strings.Join([]string{
		normalizedTitle,
		normalizedCompany,
		strings.ToLower(collapse(location)),
		string(prefix),
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ExperienceRange mines a years-of-experience range from free text.
// "5+ years" is read as [5, 7].
func ExperienceRange(text string) (*int, *int) {
	if m := rangeYears.FindStringSubmatch(text); m != nil {
		low, high := atoi(m[1]), atoi(m[2])
		if low > high {
			low, high = high, low
		}
		return &low, &high
	}
	if m := plusYears.FindStringSubmatch(text); m != nil {
		low := atoi(m[1])
		high := low + 2
		return &low, &high
	}
	if m := singleYears.FindStringSubmatch(text); m != nil {
		years := atoi(m[1])
		same := years
		return &years, &same
	}
	return nil, nil
}

// InferRemoteType uses the explicit provider flag when present, otherwise
// keywords in the location and then the description.
func InferRemoteType(location, description string, explicit *bool) models.RemoteType {
	for _, text := range []string{location, description} {
		switch {
		case hybridWords.MatchString(text):
			return models.Hybrid
		case explicit != nil && *explicit:
			return models.Remote
		case remoteWords.MatchString(text):
			return models.Remote
		case onsiteWords.MatchString(text):
			return models.Onsite
		}
	}
	if explicit != nil {
		if *explicit {
			return models.Remote
		}
		return models.Onsite
	}
	return models.RemoteUnknown
}

// Skills trims and dedupes skill tags case-insensitively, keeping the first spelling.
func Skills(skills []string) []string {
	cleaned := lo.FilterMap(skills, func(item string, _ int) (string, bool) {
		item = collapse(item)
		return item, item != ""
	})
	return lo.UniqBy(cleaned, strings.ToLower)
}

// Canonicalize builds the canonical job for a raw record. SourceID, CompanyID
// and ScrapedAt are left for the caller to resolve.
func Canonicalize(raw models.RawRecord) (models.Job, error) {
	externalID := strings.TrimSpace(raw.ExternalID)
	title := collapse(raw.Title)
	if externalID == "" {
		return models.Job{}, &errs.ParseError{Source: raw.SourceCode, Reason: "missing external id"}
	}
	if title == "" {
		return models.Job{}, &errs.ParseError{Source: raw.SourceCode, ExternalID: externalID, Reason: "missing title"}
	}

	job := models.Job{
		ExternalID:        externalID,
		Title:             title,
		NormalizedTitle:   Title(title),
		NormalizedCompany: CompanyKey(raw.Company),
		Description:       strings.TrimSpace(raw.Description),
		Location:          collapse(raw.Location),
		URL:               strings.TrimSpace(raw.URL),
		NormalizedURL:     URL(raw.URL),
		PostedAt:          raw.PostedAt,
		MinSalary:         raw.MinSalary,
		MaxSalary:         raw.MaxSalary,
		Currency:          strings.ToUpper(strings.TrimSpace(raw.Currency)),
		ExperienceMin:     raw.ExperienceMin,
		ExperienceMax:     raw.ExperienceMax,
		EmploymentType:    strings.ToLower(collapse(raw.EmploymentType)),
		Skills:            Skills(raw.Skills),
		IsActive:          true,
	}
	if job.NormalizedTitle == "" {
		job.NormalizedTitle = strings.ToLower(title)
	}

	if job.ExperienceMin == nil && job.ExperienceMax == nil {
		job.ExperienceMin, job.ExperienceMax = ExperienceRange(title + "\n" + job.Description)
	}
	if job.MinSalary != nil && job.MaxSalary != nil && *job.MinSalary > *job.MaxSalary {
		job.MinSalary, job.MaxSalary = job.MaxSalary, job.MinSalary
	}

	job.RemoteType = InferRemoteType(job.Location, job.Description, raw.Remote)
	job.Hash = ContentHash(job.NormalizedTitle, job.NormalizedCompany, job.Location, job.Description)
	return job, nil
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
