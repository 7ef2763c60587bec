package events

var JobIngestedTopic = "JobIngestedEvent"

type JobIngested struct {
	JobID   uint
	Source  string
	Verdict string
	Scored  bool
}
