package crawler

import (
	"context"
	"time"
)

// Store persists jobs, pages, topics, and page/topic links.
type Store interface {
	CreateJob(ctx context.Context, seedURL string, maxDepth int) (int64, error)
	FinishJob(ctx context.Context, jobID int64, pageCount int, status JobStatus) error
	PageExists(ctx context.Context, canonicalURL string) (bool, error)
	// SavePage returns ErrDuplicate when the URL already exists.
	SavePage(ctx context.Context, page PageInput) (int64, error)
	GetOrCreateTopic(ctx context.Context, name string) (int64, error)
	// LinkPageTopic is idempotent.
	LinkPageTopic(ctx context.Context, pageID, topicID int64) error
	CountPagesForJob(ctx context.Context, jobID int64) (int, error)
}

// Catalog exposes the read side used by the browsing commands and API.
type Catalog interface {
	ListTopics(ctx context.Context, limit int) ([]TopicCount, error)
	ListPagesForTopic(ctx context.Context, name string, limit int) ([]Page, error)
	ListJobs(ctx context.Context, limit int) ([]Job, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// RobotsPolicy decides whether a URL may be fetched.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// RateGate spaces requests to the same domain.
type RateGate interface {
	Wait(ctx context.Context, domain string) error
}

// Publisher pushes job events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
