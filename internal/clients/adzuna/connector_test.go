package adzuna

import (
	"context"
	"fmt"
	"github.com/maxaizer/job-aggregator/internal/domain/errs"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type mockHTTPClient struct {
	mock.Mock
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	return args.Get(0).(*http.Response), args.Error(1)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func results(from, count int) string {
	items := make([]string, 0, count)
	for i := from; i < from+count; i++ {
		items = append(items, fmt.Sprintf(`{"id": "%d", "title": "Go Developer", "company": {"display_name": "Initech"},
			"location": {"display_name": "London, UK"}, "salary_min": 60000, "redirect_url": "https://adzuna.test/%d",
			"created": "2024-10-15T08:12:33Z", "contract_time": "full_time"}`, i, i))
	}
	return `{"count": 120, "results": [` + strings.Join(items, ",") + `]}`
}

func pageRequest(page int) any {
	return mock.MatchedBy(func(req *http.Request) bool {
		return strings.HasSuffix(req.URL.Path, fmt.Sprintf("/gb/search/%d", page))
	})
}

func newTestConnector(httpClient HTTPClient) *Connector {
	client := NewClient(Credentials{AppID: "id", AppKey: "key"})
	client.SetHTTPClient(httpClient)
	return NewConnector(client, "GB")
}

func Test_Connector_PagesUntilShortPage(t *testing.T) {
	httpClient := &mockHTTPClient{}
	httpClient.On("Do", pageRequest(1)).Return(jsonResponse(http.StatusOK, results(0, 2)), nil).Once()
	httpClient.On("Do", pageRequest(2)).Return(jsonResponse(http.StatusOK, results(2, 1)), nil).Once()

	var streamed int
	records, err := newTestConnector(httpClient).Fetch(context.Background(),
		models.FetchQuery{Keywords: []string{"golang"}, PageSize: 2}, nil,
		func(models.RawRecord) { streamed++ })
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 3, streamed)
	httpClient.AssertExpectations(t)

	record := records[0]
	assert.Equal(t, SourceCode, record.SourceCode)
	assert.Equal(t, "0", record.ExternalID)
	assert.Equal(t, "Initech", record.Company)
	assert.Equal(t, 60000.0, *record.MinSalary)
	assert.Nil(t, record.MaxSalary)
	assert.Equal(t, "full_time", record.EmploymentType)
	require.NotNil(t, record.PostedAt)
	assert.Equal(t, 2024, record.PostedAt.Year())
}

func Test_Connector_BuildsQueryParameters(t *testing.T) {
	httpClient := &mockHTTPClient{}
	httpClient.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		q := req.URL.Query()
		return q.Get("what_or") == "go kotlin" && q.Get("where") == "London" &&
			q.Get("max_days_old") == "3" && q.Get("app_id") == "id" && q.Get("sort_by") == "date"
	})).Return(jsonResponse(http.StatusOK, `{"count": 0, "results": []}`), nil).Once()

	connector := newTestConnector(httpClient)
	now := time.Date(2024, 10, 16, 12, 0, 0, 0, time.UTC)
	connector.now = func() time.Time { return now }
	since := now.Add(-50 * time.Hour)

	records, err := connector.Fetch(context.Background(),
		models.FetchQuery{Keywords: []string{"go", "kotlin"}, Location: " London "}, &since, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	httpClient.AssertExpectations(t)
}

func Test_Connector_RespectsMaxResults(t *testing.T) {
	httpClient := &mockHTTPClient{}
	httpClient.On("Do", pageRequest(1)).Return(jsonResponse(http.StatusOK, results(0, 2)), nil).Once()

	records, err := newTestConnector(httpClient).Fetch(context.Background(),
		models.FetchQuery{MaxResults: 2, PageSize: 2}, nil, nil)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	httpClient.AssertExpectations(t)
}

func Test_Connector_MissingCredentialsFetchNothing(t *testing.T) {
	httpClient := &mockHTTPClient{}
	client := NewClient(Credentials{})
	client.SetHTTPClient(httpClient)

	records, err := NewConnector(client, "").Fetch(context.Background(), models.FetchQuery{}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, records)
	httpClient.AssertNotCalled(t, "Do", mock.Anything)
}

func Test_Connector_FailedPageKeepsEarlierRecords(t *testing.T) {
	httpClient := &mockHTTPClient{}
	httpClient.On("Do", pageRequest(1)).Return(jsonResponse(http.StatusOK, results(0, 2)), nil).Once()
	httpClient.On("Do", pageRequest(2)).Return(jsonResponse(http.StatusBadGateway, "bad gateway"), nil).Once()

	records, err := newTestConnector(httpClient).Fetch(context.Background(), models.FetchQuery{PageSize: 2}, nil, nil)
	assert.Len(t, records, 2)

	var connErr *errs.ConnectorError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, SourceCode, connErr.Source)
	assert.False(t, connErr.Transient())
}
