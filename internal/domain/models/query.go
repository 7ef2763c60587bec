package models

// JobQuery is a store-level search over active jobs. Location, experience
// and remote type narrow the result set; Phrases, when present, restrict
// titles to exactly those normalized phrases.
type JobQuery struct {
	Text            string
	Location        string
	ExperienceLevel ExperienceLevel
	RemoteType      RemoteType
	Phrases         []string
	UserID          string
	Limit           int
	Offset          int
}
