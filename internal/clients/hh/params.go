package hh

import (
	"fmt"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/pkg/errors"
	"net/url"
	"strconv"
	"time"
)

var ErrTooDeepPagination = errors.New("too deep pagination")

const (
	maxReachableResults = 2000
	defaultPerPage      = 50
)

type Experience string

const (
	NoExperience Experience = "noExperience"
	Between1and3 Experience = "between1And3"
	Between3and6 Experience = "between3And6"
	MoreThan6    Experience = "moreThan6"
)

// ExperienceFrom maps a requested level onto the closest hh bucket. An
// unknown level means no filter.
func ExperienceFrom(level models.ExperienceLevel) (Experience, error) {
	switch level {
	case models.ExperienceUnknown:
		return "", nil
	case models.Entry:
		return NoExperience, nil
	case models.Mid:
		return Between1and3, nil
	case models.Senior:
		return Between3and6, nil
	case models.Leadership:
		return MoreThan6, nil
	default:
		return "", fmt.Errorf("invalid experience level: %v", level)
	}
}

// Years is the experience span the bucket stands for; max is nil when open.
func (e Experience) Years() (min, max *int) {
	switch e {
	case NoExperience:
		return intPtr(0), intPtr(1)
	case Between1and3:
		return intPtr(1), intPtr(3)
	case Between3and6:
		return intPtr(3), intPtr(6)
	case MoreThan6:
		return intPtr(6), nil
	default:
		return nil, nil
	}
}

func intPtr(v int) *int {
	return &v
}

type Schedule string

const (
	FullDay  Schedule = "fullDay"
	Flexible Schedule = "flexible"
	Remote   Schedule = "remote"
)

func ScheduleFrom(remote models.RemoteType) ([]Schedule, error) {
	switch remote {
	case models.RemoteUnknown:
		return nil, nil
	case models.Remote:
		return []Schedule{Remote}, nil
	case models.Hybrid:
		return []Schedule{Flexible}, nil
	case models.Onsite:
		return []Schedule{FullDay}, nil
	default:
		return nil, fmt.Errorf("invalid remote type: %v", remote)
	}
}

type SearchParameters struct {
	Text                   string
	AreaID                 string
	Experience             Experience
	Schedules              []Schedule
	OrderByPublicationTime bool
	DateFrom               time.Time
	Period                 int
	Page                   int
	PerPage                int
}

func (s SearchParameters) Validate() error {

	if s.Period != 0 && !s.DateFrom.IsZero() {
		return fmt.Errorf("can't use both period and dateFrom")
	}

	if s.Page < 0 {
		return fmt.Errorf("page must be non-negative")
	}

	if s.PerPage < 0 || s.PerPage > 100 {
		return fmt.Errorf("per page must be between 0 and 100")
	}

	maxPage := maxReachableResults / s.perPage()
	if s.Page >= maxPage {
		return ErrTooDeepPagination
	}

	return nil
}

func (s SearchParameters) perPage() int {
	if s.PerPage == 0 {
		return defaultPerPage
	}
	return s.PerPage
}

func (s SearchParameters) ToUrlParams() url.Values {

	params := url.Values{}
	if s.Text != "" {
		params.Add("text", s.Text)
	}
	if s.Experience != "" {
		params.Add("experience", string(s.Experience))
	}
	for _, schedule := range s.Schedules {
		params.Add("schedule", string(schedule))
	}

	if s.AreaID != "" {
		params.Add("area", s.AreaID)
	}

	params.Add("page", strconv.Itoa(s.Page))
	params.Add("per_page", strconv.Itoa(s.perPage()))

	if s.OrderByPublicationTime {
		params.Add("order_by", "publication_time")
	}

	if s.Period != 0 {
		params.Add("period", strconv.Itoa(s.Period))
	}

	if !s.DateFrom.IsZero() {
		params.Add("date_from", s.DateFrom.Format(timeLayout))
	}

	return params
}
