package scoring

import (
	"github.com/maxaizer/job-aggregator/internal/dedup"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/maxaizer/job-aggregator/internal/geo"
	"github.com/samber/lo"
	"math"
	"regexp"
	"strings"
	"time"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}+#.]+`)

func tokenize(text string) []string {
	return lo.FilterMap(wordPattern.FindAllString(strings.ToLower(text), -1), func(token string, _ int) (string, bool) {
		token = strings.Trim(token, ".")
		return token, token != ""
	})
}

func phrases(keywords []string) []string {
	return lo.Uniq(lo.FilterMap(keywords, func(k string, _ int) (string, bool) {
		k = strings.Join(strings.Fields(strings.ToLower(k)), " ")
		return k, k != ""
	}))
}

func jobText(job *models.Job) string {
	return strings.ToLower(job.Title + " " + job.NormalizedTitle + " " + job.Description)
}

// keywordScore saturates on any exact phrase hit (OR across phrases) and
// otherwise averages 0.7-scaled token overlap over the phrases.
func keywordScore(job *models.Job, keywords []string, details *Details) float64 {
	queries := phrases(keywords)
	if len(queries) == 0 {
		return neutral
	}

	text := jobText(job)
	padded := " " + strings.Join(tokenize(text), " ") + " "
	for _, phrase := range queries {
		if strings.Contains(padded, " "+strings.Join(tokenize(phrase), " ")+" ") {
			details.MatchedPhrases = append(details.MatchedPhrases, phrase)
		}
	}
	if len(details.MatchedPhrases) > 0 {
		return 1
	}

	present := lo.SliceToMap(tokenize(text), func(token string) (string, struct{}) { return token, struct{}{} })
	total := 0.0
	for _, phrase := range queries {
		tokens := lo.Uniq(tokenize(phrase))
		if len(tokens) == 0 {
			continue
		}
		hits := lo.CountBy(tokens, func(token string) bool {
			_, ok := present[token]
			return ok
		})
		total += float64(hits) / float64(len(tokens)) * 0.7
	}
	return total / float64(len(queries))
}

// semanticScore is the best fuzzy similarity of any phrase to the title.
func semanticScore(job *models.Job, keywords []string) float64 {
	queries := phrases(keywords)
	if len(queries) == 0 {
		return neutral
	}
	title := job.NormalizedTitle
	if title == "" {
		title = strings.ToLower(job.Title)
	}
	if title == "" {
		return 0
	}
	return lo.Max(lo.Map(queries, func(phrase string, _ int) float64 {
		return dedup.Similarity(phrase, title)
	}))
}

// experienceScore compares the job range against the level bucket: overlap
// earns 0.5..1.0 by the overlapping fraction of the job range, a gap loses
// 0.1 per year down to 0.1.
func experienceScore(job *models.Job, level models.ExperienceLevel, details *Details) float64 {
	low, high, ok := level.YearsRange()
	if !ok {
		return neutral
	}
	details.ExperienceBucket = string(level)

	if job.ExperienceMin == nil && job.ExperienceMax == nil {
		return neutral
	}
	jobLow, jobHigh := experienceBounds(job)

	overlapLow, overlapHigh := max(low, jobLow), min(high, jobHigh)
	if overlapLow <= overlapHigh {
		span := jobHigh - jobLow
		if span == 0 {
			return 1
		}
		return 0.5 + 0.5*float64(overlapHigh-overlapLow)/float64(span)
	}

	gap := overlapLow - overlapHigh
	return math.Max(0.1, neutral-0.1*float64(gap))
}

func experienceBounds(job *models.Job) (int, int) {
	switch {
	case job.ExperienceMin != nil && job.ExperienceMax != nil:
		if *job.ExperienceMin > *job.ExperienceMax {
			return *job.ExperienceMax, *job.ExperienceMin
		}
		return *job.ExperienceMin, *job.ExperienceMax
	case job.ExperienceMin != nil:
		return *job.ExperienceMin, *job.ExperienceMin
	default:
		return *job.ExperienceMax, *job.ExperienceMax
	}
}

const (
	locationFloor       = 0.3
	remoteLocationFloor = 0.35
)

// locationScore never returns 0 so a borderline match is not zeroed out.
func locationScore(job *models.Job, userLocation string, preference models.RemoteType, details *Details) float64 {
	jobPlace := geo.Parse(job.Location)
	remoteJob := jobPlace.Remote || job.RemoteType == models.Remote

	if preference == models.Remote && remoteJob {
		details.LocationMatch = "remote"
		return 1
	}
	if strings.TrimSpace(userLocation) == "" {
		return neutral
	}

	user := geo.Parse(userLocation)
	switch {
	case user.City != "" && jobPlace.City == user.City:
		details.LocationMatch = "city"
		return 1
	case user.Country != "" && jobPlace.Country == user.Country:
		details.LocationMatch = "country"
		return 0.9
	}

	if len(user.Tokens) > 0 && len(jobPlace.Tokens) > 0 {
		jobTokens := lo.SliceToMap(jobPlace.Tokens, func(t string) (string, struct{}) { return t, struct{}{} })
		userTokens := lo.Uniq(user.Tokens)
		shared := lo.CountBy(userTokens, func(t string) bool {
			_, ok := jobTokens[t]
			return ok
		})
		if shared > 0 {
			details.LocationMatch = "partial"
			return 0.6 + 0.4*float64(shared)/float64(len(userTokens))
		}
	}

	if remoteJob {
		return remoteLocationFloor
	}
	return locationFloor
}

const (
	recencyFloor      = 0.1
	recencyProxyScale = 0.8
)

func (e *Engine) recencyScore(job *models.Job, details *Details) float64 {
	now := e.now()
	if job.PostedAt != nil && !job.PostedAt.IsZero() {
		return recencyByAge(now.Sub(*job.PostedAt))
	}
	details.RecencyProxy = true
	if job.ScrapedAt.IsZero() {
		return recencyFloor
	}
	return math.Max(recencyFloor, recencyByAge(now.Sub(job.ScrapedAt))*recencyProxyScale)
}

// recencyByAge is 1.0 up to a day, then decays linearly to 0.7 at a week,
// 0.3 at thirty days and the floor at ninety.
func recencyByAge(age time.Duration) float64 {
	days := age.Hours() / 24
	switch {
	case days <= 1:
		return 1
	case days <= 7:
		return 1 - 0.3*(days-1)/6
	case days <= 30:
		return 0.7 - 0.4*(days-7)/23
	case days <= 90:
		return 0.3 - 0.2*(days-30)/60
	default:
		return recencyFloor
	}
}
