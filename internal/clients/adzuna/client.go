package adzuna

import (
	"context"
	"encoding/json"
	"fmt"
	"golang.org/x/time/rate"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultBaseURL = "https://api.adzuna.com/v1/api/jobs"
	pageSize       = 50
	httpTimeout    = 15 * time.Second
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Credentials struct {
	AppID  string
	AppKey string
}

func (c Credentials) Empty() bool {
	return c.AppID == "" || c.AppKey == ""
}

type SearchParameters struct {
	Country    string
	What       string
	WhatOr     string
	Where      string
	MaxDaysOld int
	Page       int
	PerPage    int
}

type searchResponse struct {
	Results []Result `json:"results"`
	Count   int      `json:"count"`
}

// Result is a single Adzuna listing.
type Result struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Company      Display  `json:"company"`
	Location     Display  `json:"location"`
	SalaryMin    *float64 `json:"salary_min"`
	SalaryMax    *float64 `json:"salary_max"`
	RedirectURL  string   `json:"redirect_url"`
	Created      string   `json:"created"`
	ContractTime string   `json:"contract_time"`
	ContractType string   `json:"contract_type"`
}

type Display struct {
	DisplayName string `json:"display_name"`
}

type SearchPage struct {
	Results []Result
	Count   int
}

type Client struct {
	httpClient  HTTPClient
	rateLimiter *rate.Limiter
	credentials Credentials
	baseURL     string
}

func NewClient(credentials Credentials) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: httpTimeout},
		credentials: credentials,
		baseURL:     defaultBaseURL,
	}
}

func (c *Client) SetHTTPClient(client HTTPClient) {
	c.httpClient = client
}

func (c *Client) SetRateLimit(maxRequestsPerSecond float32) {
	c.rateLimiter = rate.NewLimiter(rate.Limit(maxRequestsPerSecond), 1)
}

func (c *Client) Search(ctx context.Context, parameters SearchParameters) (SearchPage, error) {
	if parameters.Country == "" {
		return SearchPage{}, fmt.Errorf("invalid parameters: country is required")
	}
	if parameters.Page < 1 {
		parameters.Page = 1
	}
	if parameters.PerPage <= 0 {
		parameters.PerPage = pageSize
	}

	endpoint := fmt.Sprintf("%s/%s/search/%d", c.baseURL, parameters.Country, parameters.Page)

	params := url.Values{}
	params.Set("app_id", c.credentials.AppID)
	params.Set("app_key", c.credentials.AppKey)
	params.Set("results_per_page", strconv.Itoa(parameters.PerPage))
	if parameters.What != "" {
		params.Set("what", parameters.What)
	}
	if parameters.WhatOr != "" {
		params.Set("what_or", parameters.WhatOr)
	}
	if parameters.Where != "" {
		params.Set("where", parameters.Where)
	}
	if parameters.MaxDaysOld > 0 {
		params.Set("max_days_old", strconv.Itoa(parameters.MaxDaysOld))
	}
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")

	body, err := c.sendRequest(ctx, endpoint+"?"+params.Encode())
	if err != nil {
		return SearchPage{}, err
	}

	var response searchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return SearchPage{}, fmt.Errorf("error decoding JSON response: %w", err)
	}
	return SearchPage{Results: response.Results, Count: response.Count}, nil
}

func (c *Client) sendRequest(ctx context.Context, url string) ([]byte, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("adzuna returned %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
