package hh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"golang.org/x/time/rate"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.hh.ru"
	httpTimeout    = 15 * time.Second
)

type getVacanciesResponse struct {
	Vacancies []VacancyPreview `json:"items"`
	Found     int              `json:"found"`
	Pages     int              `json:"pages"`
	Page      int              `json:"page"`
}

// VacanciesPage is one page of search results.
type VacanciesPage struct {
	Vacancies []VacancyPreview
	Found     int
	Pages     int
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is a non-200 answer from the API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %v, body: %v", e.StatusCode, e.Body)
}

type Client struct {
	httpClient  HTTPClient
	rateLimiter *rate.Limiter
	baseURL     string
	userAgent   string
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: httpTimeout},
		baseURL:    defaultBaseURL,
		userAgent:  "job-aggregator/1.0",
	}
}

func (c *Client) SetHTTPClient(client HTTPClient) {
	c.httpClient = client
}

func (c *Client) SetRateLimit(maxRequestsPerSecond float32) {
	c.rateLimiter = rate.NewLimiter(rate.Limit(maxRequestsPerSecond), 1)
}

func (c *Client) GetVacancies(ctx context.Context, parameters SearchParameters) (VacanciesPage, error) {

	if err := parameters.Validate(); err != nil {
		return VacanciesPage{}, fmt.Errorf("invalid parameters: %w", err)
	}

	params := parameters.ToUrlParams()

	body, err := c.sendRequest(ctx, http.MethodGet, c.baseURL+"/vacancies?"+params.Encode(), nil)
	if err != nil {
		return VacanciesPage{}, err
	}

	var vacanciesResponse getVacanciesResponse
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&vacanciesResponse); err != nil {
		return VacanciesPage{}, fmt.Errorf("error decoding JSON response: %w", err)
	}

	return VacanciesPage{
		Vacancies: vacanciesResponse.Vacancies,
		Found:     vacanciesResponse.Found,
		Pages:     vacanciesResponse.Pages,
	}, nil
}

func (c *Client) GetVacancy(ctx context.Context, id string) (Vacancy, error) {

	body, err := c.sendRequest(ctx, http.MethodGet, c.baseURL+"/vacancies/"+id, nil)
	if err != nil {
		return Vacancy{}, err
	}

	var vacancyResponse Vacancy
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&vacancyResponse); err != nil {
		return Vacancy{}, fmt.Errorf("error decoding JSON response: %w", err)
	}

	return vacancyResponse, nil
}

// GetAreas returns the whole area tree flattened, parents before children.
func (c *Client) GetAreas(ctx context.Context) ([]Area, error) {

	body, err := c.sendRequest(ctx, http.MethodGet, c.baseURL+"/areas", nil)
	if err != nil {
		return nil, err
	}

	var areas []area
	if err = json.NewDecoder(bytes.NewReader(body)).Decode(&areas); err != nil {
		return nil, fmt.Errorf("error decoding JSON response: %w", err)
	}

	var allAreas []Area

	var collectAreas func(areas []area, country string)
	collectAreas = func(areas []area, country string) {
		for _, area := range areas {
			if area.ParentID == nil {
				country = area.Name
			}
			allAreas = append(allAreas, Area{ID: area.ID, Name: area.Name, Country: country, Leaf: len(area.Areas) == 0})
			collectAreas(area.Areas, country)
		}
	}
	collectAreas(areas, "")
	return allAreas, nil
}

func (c *Client) sendRequest(ctx context.Context, method string, url string, body io.Reader) ([]byte, error) {

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	return c.handleResponse(resp)
}

func (c *Client) handleResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}
