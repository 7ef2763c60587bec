package repositories

import (
	"context"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/maxaizer/job-aggregator/internal/geo"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"strconv"
	"strings"
	"time"
)

const maxQueryTokens = 8

// JobSearch runs the read-side queries of the ranker. Postgres gets real
// full-text ranking; SQLite falls back to weighted LIKE matching with the
// same title/description weights.
type JobSearch struct {
	db *gorm.DB
}

func NewJobSearchRepository(db *gorm.DB) *JobSearch {
	return &JobSearch{db: db}
}

func (repo *JobSearch) postgres() bool {
	return repo.db.Dialector.Name() == "postgres"
}

// CountScored counts active jobs matching the filters that already carry a
// stored score for the user.
func (repo *JobSearch) CountScored(ctx context.Context, q models.JobQuery) (int64, error) {
	var count int64
	db := repo.db.WithContext(ctx).Table("jobs").
		Joins("JOIN user_job_scores ON user_job_scores.job_id = jobs.id AND user_job_scores.user_id = ?", q.UserID)
	err := repo.filter(db, q).Count(&count).Error
	return count, err
}

// ScoredPage returns the user's jobs ordered by stored score.
func (repo *JobSearch) ScoredPage(ctx context.Context, q models.JobQuery) ([]models.ScoredJob, error) {
	db := repo.db.WithContext(ctx).Table("jobs").
		Select("jobs.*, companies.name AS company_name, sources.code AS source_code, " +
			"0 AS relevance, user_job_scores.last_match_score AS stored_score").
		Joins("JOIN user_job_scores ON user_job_scores.job_id = jobs.id AND user_job_scores.user_id = ?", q.UserID).
		Joins("LEFT JOIN companies ON companies.id = jobs.company_id").
		Joins("LEFT JOIN sources ON sources.id = jobs.source_id")

	var rows []models.ScoredJob
	err := repo.filter(db, q).
		Order("user_job_scores.last_match_score DESC").
		Order(repo.recencyOrder("jobs")).
		Order("jobs.id DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		Scan(&rows).Error
	return rows, err
}

// FullText is the primary ranked query. Phrases, when given, restrict
// titles to exactly those phrases; otherwise the text must match the title
// or the description.
func (repo *JobSearch) FullText(ctx context.Context, q models.JobQuery) ([]models.ScoredJob, error) {
	relevance, args := repo.relevance(q.Text)
	inner := repo.match(repo.ranked(ctx, q, relevance, args), q)
	return repo.page(ctx, inner, q.Limit, q.Offset)
}

// CountFullText counts every row FullText could return for the query.
func (repo *JobSearch) CountFullText(ctx context.Context, q models.JobQuery) (int64, error) {
	var count int64
	db := repo.filter(repo.db.WithContext(ctx).Table("jobs"), q)
	err := repo.match(db, q).Count(&count).Error
	return count, err
}

func (repo *JobSearch) match(db *gorm.DB, q models.JobQuery) *gorm.DB {
	if len(q.Phrases) > 0 {
		return db.Where("LOWER(jobs.normalized_title) IN ?", lowerPhrases(q.Phrases))
	}
	if strings.TrimSpace(q.Text) != "" {
		return repo.textMatch(db, q.Text)
	}
	return db
}

// Substring loosens the phrase filter to titles containing any of the
// phrases. Exact title matches are left out, they belong to FullText.
func (repo *JobSearch) Substring(ctx context.Context, q models.JobQuery) ([]models.ScoredJob, error) {
	phrases := lowerPhrases(q.Phrases)
	if len(phrases) == 0 {
		return nil, nil
	}

	contains := repo.db.Session(&gorm.Session{NewDB: true})
	for i, phrase := range phrases {
		pattern := "%" + escapeLike(phrase) + "%"
		if i == 0 {
			contains = contains.Where("LOWER(jobs.title) LIKE ?", pattern)
		} else {
			contains = contains.Or("LOWER(jobs.title) LIKE ?", pattern)
		}
	}

	relevance, args := repo.relevance(strings.Join(phrases, " "))
	inner := repo.ranked(ctx, q, relevance, args).
		Where("LOWER(jobs.normalized_title) NOT IN ?", phrases).
		Where(contains)
	return repo.page(ctx, inner, q.Limit, q.Offset)
}

// RecentHighYield is the broad backfill: recently scraped jobs from
// high-yield sources, text ignored.
func (repo *JobSearch) RecentHighYield(ctx context.Context, q models.JobQuery, since time.Time, exclude []uint) ([]models.ScoredJob, error) {
	inner := repo.ranked(ctx, q, "0", nil).
		Where("sources.high_yield = ? AND jobs.scraped_at >= ?", true, since)
	if len(exclude) > 0 {
		inner = inner.Where("jobs.id NOT IN ?", exclude)
	}
	return repo.page(ctx, inner, q.Limit, 0)
}

func (repo *JobSearch) ranked(ctx context.Context, q models.JobQuery, relevance string, args []any) *gorm.DB {
	columns := "jobs.*, companies.name AS company_name, sources.code AS source_code, " + relevance + " AS relevance, "
	db := repo.db.WithContext(ctx).Table("jobs").
		Joins("LEFT JOIN companies ON companies.id = jobs.company_id").
		Joins("LEFT JOIN sources ON sources.id = jobs.source_id")

	if q.UserID != "" {
		db = db.Select(columns+"user_job_scores.last_match_score AS stored_score", args...).
			Joins("LEFT JOIN user_job_scores ON user_job_scores.job_id = jobs.id AND user_job_scores.user_id = ?", q.UserID)
	} else {
		db = db.Select(columns+"NULL AS stored_score", args...)
	}
	return repo.filter(db, q)
}

func (repo *JobSearch) page(ctx context.Context, inner *gorm.DB, limit, offset int) ([]models.ScoredJob, error) {
	var rows []models.ScoredJob
	err := repo.db.WithContext(ctx).Table("(?) AS ranked", inner).
		Order("ranked.relevance + COALESCE(ranked.stored_score, 0) DESC").
		Order(repo.recencyOrder("ranked")).
		Order("ranked.id DESC").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	return rows, err
}

func (repo *JobSearch) recencyOrder(table string) string {
	return table + ".posted_at DESC NULLS LAST"
}

func (repo *JobSearch) relevance(text string) (string, []any) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "0", nil
	}

	if repo.postgres() {
		return "(1.5 * ts_rank(to_tsvector('simple', jobs.title), plainto_tsquery('simple', ?)) + " +
			"0.5 * ts_rank(to_tsvector('simple', COALESCE(jobs.description, '')), plainto_tsquery('simple', ?)))", []any{text, text}
	}

	tokens := queryTokens(text)
	parts := make([]string, 0, len(tokens))
	args := make([]any, 0, len(tokens)*2)
	for _, token := range tokens {
		parts = append(parts, "(CASE WHEN LOWER(jobs.title) LIKE ? THEN 1.5 ELSE 0 END + "+
			"CASE WHEN LOWER(jobs.description) LIKE ? THEN 0.5 ELSE 0 END)")
		pattern := "%" + escapeLike(token) + "%"
		args = append(args, pattern, pattern)
	}
	return "((" + strings.Join(parts, " + ") + ") / " + strconv.Itoa(len(tokens)) + ".0)", args
}

func (repo *JobSearch) textMatch(db *gorm.DB, text string) *gorm.DB {
	if repo.postgres() {
		return db.Where("to_tsvector('simple', jobs.title) @@ plainto_tsquery('simple', ?) OR "+
			"to_tsvector('simple', COALESCE(jobs.description, '')) @@ plainto_tsquery('simple', ?)", text, text)
	}

	conditions := repo.db.Session(&gorm.Session{NewDB: true})
	for i, token := range queryTokens(text) {
		pattern := "%" + escapeLike(token) + "%"
		if i == 0 {
			conditions = conditions.Where("LOWER(jobs.title) LIKE ? OR LOWER(jobs.description) LIKE ?", pattern, pattern)
		} else {
			conditions = conditions.Or("LOWER(jobs.title) LIKE ? OR LOWER(jobs.description) LIKE ?", pattern, pattern)
		}
	}
	return db.Where(conditions)
}

// filter applies the narrowing filters shared by every ranker query.
// Jobs with unknown experience or remote type stay eligible.
func (repo *JobSearch) filter(db *gorm.DB, q models.JobQuery) *gorm.DB {
	db = db.Where("jobs.is_active = ?", true)

	if location := strings.TrimSpace(q.Location); location != "" {
		db = db.Where(repo.locationCondition(location))
	}

	if min, max, ok := q.ExperienceLevel.YearsRange(); ok {
		db = db.Where("(jobs.experience_min IS NULL OR jobs.experience_min <= ?) AND "+
			"(jobs.experience_max IS NULL OR jobs.experience_max >= ?)", max, min)
	}

	if q.RemoteType != models.RemoteUnknown {
		db = db.Where("jobs.remote_type IN ?", []models.RemoteType{q.RemoteType, models.RemoteUnknown})
	}
	return db
}

// locationCondition matches any spelling of the requested city, or the
// country when no city is known. Remote jobs always qualify.
func (repo *JobSearch) locationCondition(location string) *gorm.DB {
	place := geo.Parse(location)
	terms := geo.Spellings(place.City)
	if len(terms) == 0 && place.Country != "" {
		terms = []string{place.Country}
	}
	if len(terms) == 0 {
		terms = []string{strings.ToLower(location)}
	}

	condition := repo.db.Session(&gorm.Session{NewDB: true}).Where("jobs.remote_type = ?", models.Remote)
	for _, term := range terms {
		condition = condition.Or("LOWER(jobs.location) LIKE ?", "%"+escapeLike(term)+"%")
	}
	return condition
}

func lowerPhrases(phrases []string) []string {
	return lo.Uniq(lo.FilterMap(phrases, func(p string, _ int) (string, bool) {
		p = strings.ToLower(strings.TrimSpace(p))
		return p, p != ""
	}))
}

func queryTokens(text string) []string {
	tokens := lo.Uniq(strings.Fields(strings.ToLower(text)))
	if len(tokens) > maxQueryTokens {
		tokens = tokens[:maxQueryTokens]
	}
	return tokens
}

var likeEscaper = strings.NewReplacer("%", "", "_", "")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
