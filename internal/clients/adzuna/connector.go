package adzuna

import (
	"context"
	"github.com/maxaizer/job-aggregator/internal/connectors"
	"github.com/maxaizer/job-aggregator/internal/domain/errs"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"math"
	"strings"
	"time"
)

const (
	SourceCode = "adzuna"
	maxPages   = 3
)

// Connector pages through Adzuna search results. Without credentials it
// fetches nothing.
type Connector struct {
	client      *Client
	country     string
	credentials Credentials
	now         func() time.Time
}

var _ connectors.Connector = (*Connector)(nil)

func NewConnector(client *Client, country string) *Connector {
	if country == "" {
		country = "gb"
	}
	return &Connector{client: client, country: strings.ToLower(country), credentials: client.credentials, now: time.Now}
}

func (c *Connector) Fetch(ctx context.Context, query models.FetchQuery, since *time.Time,
	onRecordReady connectors.RecordHandler) ([]models.RawRecord, error) {

	if c.credentials.Empty() {
		log.Warn("adzuna: app id or app key not set, skipping fetch")
		return nil, nil
	}

	params := c.searchParams(query, since)
	limit := maxPages * params.PerPage
	if query.MaxResults > 0 {
		limit = min(limit, query.MaxResults)
	}

	var records []models.RawRecord
	for page := 0; page < maxPages && len(records) < limit; page++ {
		params.Page = query.Page + page + 1

		result, err := c.client.Search(ctx, params)
		if err != nil {
			return records, &errs.ConnectorError{Source: SourceCode, Err: err}
		}

		for _, listing := range result.Results {
			if len(records) >= limit {
				break
			}
			record := toRawRecord(listing)
			if onRecordReady != nil {
				onRecordReady(record)
			}
			records = append(records, record)
		}

		if len(result.Results) < params.PerPage {
			break
		}
	}
	return records, nil
}

func (c *Connector) searchParams(query models.FetchQuery, since *time.Time) SearchParameters {
	keywords := lo.Compact(lo.Map(query.Keywords, func(k string, _ int) string {
		return strings.TrimSpace(k)
	}))

	params := SearchParameters{
		Country: c.country,
		Where:   strings.TrimSpace(query.Location),
		PerPage: pageSize,
	}
	if query.PageSize > 0 {
		params.PerPage = query.PageSize
	}

	switch {
	case len(keywords) == 1:
		params.What = keywords[0]
	case len(keywords) > 1:
		params.WhatOr = strings.Join(keywords, " ")
	}

	if since != nil {
		days := math.Ceil(c.now().Sub(*since).Hours() / 24)
		params.MaxDaysOld = max(int(days), 1)
	}
	return params
}

func toRawRecord(listing Result) models.RawRecord {
	record := models.RawRecord{
		SourceCode:     SourceCode,
		ExternalID:     listing.ID,
		Title:          listing.Title,
		Company:        listing.Company.DisplayName,
		Location:       listing.Location.DisplayName,
		Description:    listing.Description,
		URL:            listing.RedirectURL,
		MinSalary:      listing.SalaryMin,
		MaxSalary:      listing.SalaryMax,
		EmploymentType: listing.ContractTime,
		Payload: map[string]any{
			"contract_type": listing.ContractType,
		},
	}

	if created, err := time.Parse(time.RFC3339, listing.Created); err == nil {
		record.PostedAt = &created
	}
	return record
}
