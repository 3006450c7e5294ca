package crawler

import (
	"errors"
	"time"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the store.
const (
	JobStatusRunning     JobStatus = "running"
	JobStatusDone        JobStatus = "done"
	JobStatusInterrupted JobStatus = "interrupted"
	JobStatusError       JobStatus = "error"
)

// Terminal reports whether no further transition is possible from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusDone, JobStatusInterrupted, JobStatusError:
		return true
	default:
		return false
	}
}

var (
	// ErrDuplicate is returned by Store.SavePage when the canonical URL is already stored.
	ErrDuplicate = errors.New("duplicate page")
	// ErrStatus wraps non-2xx responses returned by a Fetcher.
	ErrStatus = errors.New("unexpected http status")
	// ErrNotFound is returned by read-side queries for unknown keys.
	ErrNotFound = errors.New("not found")
)

// Job represents one crawl invocation persisted by the store.
type Job struct {
	ID         int64     `json:"id"`
	SeedURL    string    `json:"seed_url"`
	MaxDepth   int       `json:"max_depth"`
	StartedAt  time.Time `json:"started_at"`
	Status     JobStatus `json:"status"`
	PagesFound int       `json:"pages_found"`
}

// PageInput carries the fields needed to persist a newly discovered page.
type PageInput struct {
	URL         string
	Title       string
	Description string
	Domain      string
	Depth       int
	JobID       int64
}

// Page is a stored page row.
type Page struct {
	ID          int64     `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Domain      string    `json:"domain"`
	Depth       int       `json:"depth"`
	JobID       int64     `json:"job_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// TopicCount pairs a topic name with the number of pages linked to it.
type TopicCount struct {
	Name      string `json:"name"`
	PageCount int    `json:"page_count"`
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	// HTML is false when the response carried a non-HTML content type; Body is empty then.
	HTML     bool
	Duration time.Duration
}

// PageContent holds the signals extracted from one HTML document.
type PageContent struct {
	Title       string
	Description string
	Headings    []string
	Links       []string
}

// Result summarizes a finished crawl.
type Result struct {
	JobID  int64
	Pages  int
	Status JobStatus
}

// JobEvent is published once a job reaches a terminal status.
type JobEvent struct {
	JobID      int64     `json:"job_id"`
	RunID      string    `json:"run_id"`
	SeedURL    string    `json:"seed_url"`
	MaxDepth   int       `json:"max_depth"`
	Status     JobStatus `json:"status"`
	PagesFound int       `json:"pages_found"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
