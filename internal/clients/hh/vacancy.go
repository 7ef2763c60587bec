package hh

import (
	"encoding/json"
	"fmt"
	"time"
)

const timeLayout = "2006-01-02T15:04:05-0700"

type Vacancy struct {
	VacancyPreview
	Description string
	KeySkills   []KeySkill `json:"key_skills"`
}

type VacancyPreview struct {
	ID          string
	Name        string
	Url         string     `json:"alternate_url"`
	PublishedAt CustomTime `json:"published_at"`
	Employer    *Named     `json:"employer"`
	Area        *Named     `json:"area"`
	Salary      *Salary    `json:"salary"`
	Schedule    *Named     `json:"schedule"`
	Experience  *Named     `json:"experience"`
	Employment  *Named     `json:"employment"`
	Snippet     *Snippet   `json:"snippet"`
}

// Named is the {id, name} dictionary reference hh uses everywhere.
type Named struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Salary struct {
	From     *float64 `json:"from"`
	To       *float64 `json:"to"`
	Currency string   `json:"currency"`
}

type Snippet struct {
	Requirement    string `json:"requirement"`
	Responsibility string `json:"responsibility"`
}

type KeySkill struct {
	Name string
}

type CustomTime struct {
	time.Time
}

func (dt *CustomTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}

	t, err := time.Parse(timeLayout, str)
	if err != nil {
		return fmt.Errorf("parsing time %s: %w", str, err)
	}
	dt.Time = t
	return nil
}
