package hh

import (
	"context"
	"errors"
	"github.com/maxaizer/job-aggregator/internal/connectors"
	"github.com/maxaizer/job-aggregator/internal/domain/errs"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/maxaizer/job-aggregator/internal/logger"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"strings"
	"time"
)

const (
	SourceCode        = "hh"
	defaultMaxResults = 100
)

// Connector streams hh.ru vacancies. Search pages only carry previews, so
// every vacancy is completed with a detail request before it is handed on.
type Connector struct {
	client *Client
	areas  *AreaResolver
}

var _ connectors.Connector = (*Connector)(nil)

func NewConnector(client *Client) *Connector {
	return &Connector{client: client, areas: NewAreaResolver(client)}
}

func (c *Connector) Fetch(ctx context.Context, query models.FetchQuery, since *time.Time,
	onRecordReady connectors.RecordHandler) ([]models.RawRecord, error) {

	params, err := c.searchParams(ctx, query, since)
	if err != nil {
		return nil, &errs.ConnectorError{Source: SourceCode, Err: err}
	}

	maxResults := query.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	var records []models.RawRecord
	for len(records) < maxResults {
		page, err := c.client.GetVacancies(ctx, params)
		if err != nil {
			if errors.Is(err, ErrTooDeepPagination) {
				log.Warnf("hh: too deep pagination, page: %d, per page: %d", params.Page, params.PerPage)
				break
			}
			return records, &errs.ConnectorError{Source: SourceCode, Err: err}
		}

		for _, preview := range page.Vacancies {
			if len(records) >= maxResults {
				break
			}
			record, err := c.record(ctx, preview)
			if err != nil {
				return records, &errs.ConnectorError{Source: SourceCode, Err: err}
			}
			if onRecordReady != nil {
				onRecordReady(record)
			}
			records = append(records, record)
		}

		params.Page++
		if len(page.Vacancies) == 0 || params.Page >= page.Pages {
			break
		}
	}

	return records, nil
}

func (c *Connector) searchParams(ctx context.Context, query models.FetchQuery, since *time.Time) (SearchParameters, error) {
	experience, err := ExperienceFrom(query.ExperienceLevel)
	if err != nil {
		return SearchParameters{}, err
	}
	schedules, err := ScheduleFrom(query.RemoteType)
	if err != nil {
		return SearchParameters{}, err
	}

	params := SearchParameters{
		Text:                   searchText(query.Keywords),
		Experience:             experience,
		Schedules:              schedules,
		OrderByPublicationTime: true,
		Page:                   query.Page,
		PerPage:                query.PageSize,
	}
	if since != nil {
		params.DateFrom = *since
	}

	if query.Location != "" {
		areaID, err := c.areas.Resolve(ctx, query.Location)
		if err != nil {
			return SearchParameters{}, err
		}
		if areaID == "" {
			log.Debugf("hh: no area for location %q, searching everywhere", query.Location)
		}
		params.AreaID = areaID
	}
	return params, nil
}

// record completes a preview with its detail page. When the detail request
// fails for a reason other than cancellation the preview alone is used.
func (c *Connector) record(ctx context.Context, preview VacancyPreview) (models.RawRecord, error) {
	vacancy, err := c.client.GetVacancy(ctx, preview.ID)
	if err != nil {
		if ctx.Err() != nil {
			return models.RawRecord{}, err
		}
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeConnector).
			Warnf("hh: failed to get vacancy %s, using preview: %v", preview.ID, err)
		vacancy = Vacancy{VacancyPreview: preview, Description: preview.Snippet.text()}
	}
	return toRawRecord(vacancy), nil
}

func toRawRecord(vacancy Vacancy) models.RawRecord {
	record := models.RawRecord{
		SourceCode:  SourceCode,
		ExternalID:  vacancy.ID,
		Title:       vacancy.Name,
		Company:     vacancy.Employer.name(),
		Location:    vacancy.Area.name(),
		Description: vacancy.Description,
		URL:         vacancy.Url,
		Skills: lo.Map(vacancy.KeySkills, func(skill KeySkill, _ int) string {
			return skill.Name
		}),
		EmploymentType: vacancy.Employment.name(),
	}

	if !vacancy.PublishedAt.IsZero() {
		published := vacancy.PublishedAt.Time
		record.PostedAt = &published
	}
	if vacancy.Salary != nil {
		record.MinSalary = vacancy.Salary.From
		record.MaxSalary = vacancy.Salary.To
		record.Currency = vacancy.Salary.Currency
	}
	if vacancy.Experience != nil {
		record.ExperienceMin, record.ExperienceMax = Experience(vacancy.Experience.ID).Years()
	}
	if vacancy.Schedule != nil && Schedule(vacancy.Schedule.ID) == Remote {
		remote := true
		record.Remote = &remote
	}
	return record
}

func searchText(keywords []string) string {
	terms := lo.Compact(lo.Map(keywords, func(k string, _ int) string {
		return strings.TrimSpace(k)
	}))
	return strings.Join(terms, " OR ")
}

func (n *Named) name() string {
	if n == nil {
		return ""
	}
	return n.Name
}

func (s *Snippet) text() string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.Requirement + " " + s.Responsibility)
}
