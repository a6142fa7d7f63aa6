package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobType identifies the handler responsible for a job. The set is closed.
type JobType string

const (
	JobTypeAIGeneration      JobType = "ai_generation"
	JobTypeReviewProcessing  JobType = "review_processing"
	JobTypePromptAnalysis    JobType = "prompt_analysis"
	JobTypeSentimentAnalysis JobType = "sentiment_analysis"
)

// JobTypes lists every valid job type in a stable order.
var JobTypes = []JobType{
	JobTypeAIGeneration,
	JobTypeReviewProcessing,
	JobTypePromptAnalysis,
	JobTypeSentimentAnalysis,
}

// ParseJobType returns the JobType for s and whether it is one of JobTypes.
func ParseJobType(s string) (JobType, bool) {
	for _, t := range JobTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	_, ok := ParseJobType(string(t))
	return ok
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ParseJobStatus returns the JobStatus for s and whether it is known.
func ParseJobStatus(s string) (JobStatus, bool) {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return JobStatus(s), true
	}
	return "", false
}

// Terminal reports whether no further transitions are allowed out of s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// validTransitions holds the forward lifecycle. processing -> pending is
// reserved for lease recovery and is not listed here.
var validTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether from -> to is a forward lifecycle transition.
func CanTransition(from, to JobStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Job is a unit of asynchronous work owned by a user. The API returns it
// in pending state on POST /api/v1/jobs; the client polls
// GET /api/v1/jobs/{job_id} until status is completed or failed.
type Job struct {
	ID        uuid.UUID       `db:"id"         json:"id"`
	UserID    uuid.UUID       `db:"user_id"    json:"user_id"`
	Type      JobType         `db:"job_type"   json:"job_type"`
	Payload   json.RawMessage `db:"payload"    json:"payload"`
	Status    JobStatus       `db:"status"     json:"status"`
	Result    json.RawMessage `db:"result"     json:"result,omitempty"`
	Error     *string         `db:"error"      json:"error,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`

	Attempts       int        `db:"attempts"         json:"-"`
	LockedBy       *string    `db:"locked_by"        json:"-"`
	LeaseExpiresAt *time.Time `db:"lease_expires_at" json:"-"`
	StartedAt      *time.Time `db:"started_at"       json:"-"`
	CompletedAt    *time.Time `db:"completed_at"     json:"-"`
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Payload = cloneRaw(j.Payload)
	c.Result = cloneRaw(j.Result)
	if j.Error != nil {
		msg := *j.Error
		c.Error = &msg
	}
	if j.LockedBy != nil {
		w := *j.LockedBy
		c.LockedBy = &w
	}
	c.LeaseExpiresAt = cloneTime(j.LeaseExpiresAt)
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	return &c
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
