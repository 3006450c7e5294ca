// Package memory provides an in-process crawler.Store for development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/eduspider/internal/crawler"
)

// Store keeps jobs, pages, and topics in maps guarded by a single mutex.
type Store struct {
	mu         sync.RWMutex
	now        func() time.Time
	jobs       map[int64]crawler.Job
	pages      map[int64]crawler.Page
	pageByURL  map[string]int64
	topics     map[int64]string
	topicByKey map[string]int64
	links      map[int64]map[int64]struct{} // topic id -> page ids
	nextJob    int64
	nextPage   int64
	nextTopic  int64
}

var (
	_ crawler.Store   = (*Store)(nil)
	_ crawler.Catalog = (*Store)(nil)
)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		now:        func() time.Time { return time.Now().UTC() },
		jobs:       make(map[int64]crawler.Job),
		pages:      make(map[int64]crawler.Page),
		pageByURL:  make(map[string]int64),
		topics:     make(map[int64]string),
		topicByKey: make(map[string]int64),
		links:      make(map[int64]map[int64]struct{}),
	}
}

// CreateJob stores a new job in running status.
func (s *Store) CreateJob(_ context.Context, seedURL string, maxDepth int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextJob++
	s.jobs[s.nextJob] = crawler.Job{
		ID:        s.nextJob,
		SeedURL:   seedURL,
		MaxDepth:  maxDepth,
		StartedAt: s.now(),
		Status:    crawler.JobStatusRunning,
	}
	return s.nextJob, nil
}

// FinishJob sets the final count and status.
func (s *Store) FinishJob(_ context.Context, jobID int64, pagesFound int, status crawler.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.ErrNotFound
	}
	job.PagesFound = pagesFound
	job.Status = status
	s.jobs[jobID] = job
	return nil
}

// PageExists reports whether url is stored.
func (s *Store) PageExists(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pageByURL[url]
	return ok, nil
}

// SavePage inserts a page, returning crawler.ErrDuplicate when the URL exists.
func (s *Store) SavePage(_ context.Context, page crawler.PageInput) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pageByURL[page.URL]; ok {
		return 0, crawler.ErrDuplicate
	}
	s.nextPage++
	s.pages[s.nextPage] = crawler.Page{
		ID:          s.nextPage,
		URL:         page.URL,
		Title:       page.Title,
		Description: page.Description,
		Domain:      page.Domain,
		Depth:       page.Depth,
		JobID:       page.JobID,
		CreatedAt:   s.now(),
	}
	s.pageByURL[page.URL] = s.nextPage
	return s.nextPage, nil
}

// GetOrCreateTopic returns the id for name, creating the topic if needed.
func (s *Store) GetOrCreateTopic(_ context.Context, name string) (int64, error) {
	if name == "" {
		return 0, errors.New("topic name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.topicByKey[name]; ok {
		return id, nil
	}
	s.nextTopic++
	s.topics[s.nextTopic] = name
	s.topicByKey[name] = s.nextTopic
	return s.nextTopic, nil
}

// LinkPageTopic associates a page with a topic. Repeated links are no-ops.
func (s *Store) LinkPageTopic(_ context.Context, pageID, topicID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[pageID]; !ok {
		return crawler.ErrNotFound
	}
	if _, ok := s.topics[topicID]; !ok {
		return crawler.ErrNotFound
	}
	set, ok := s.links[topicID]
	if !ok {
		set = make(map[int64]struct{})
		s.links[topicID] = set
	}
	set[pageID] = struct{}{}
	return nil
}

// CountPagesForJob counts pages tagged with jobID.
func (s *Store) CountPagesForJob(_ context.Context, jobID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.pages {
		if p.JobID == jobID {
			n++
		}
	}
	return n, nil
}

// ListTopics returns topics ordered by page count descending, then name.
func (s *Store) ListTopics(_ context.Context, limit int) ([]crawler.TopicCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.TopicCount, 0, len(s.topics))
	for id, name := range s.topics {
		count := len(s.links[id])
		if count == 0 {
			continue
		}
		out = append(out, crawler.TopicCount{Name: name, PageCount: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PageCount != out[j].PageCount {
			return out[i].PageCount > out[j].PageCount
		}
		return out[i].Name < out[j].Name
	})
	return truncate(out, limit), nil
}

// ListPagesForTopic returns the pages linked to name, newest first.
func (s *Store) ListPagesForTopic(_ context.Context, name string, limit int) ([]crawler.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.topicByKey[name]
	if !ok {
		return nil, crawler.ErrNotFound
	}
	out := make([]crawler.Page, 0, len(s.links[id]))
	for pageID := range s.links[id] {
		out = append(out, s.pages[pageID])
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return truncate(out, limit), nil
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(_ context.Context, limit int) ([]crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	return truncate(out, limit), nil
}

// Job returns a copy of a stored job.
func (s *Store) Job(jobID int64) (crawler.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	return job, ok
}

// Page returns a copy of a stored page by URL.
func (s *Store) Page(url string) (crawler.Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pageByURL[url]
	if !ok {
		return crawler.Page{}, false
	}
	return s.pages[id], true
}

// TopicsForPage returns the sorted topic names linked to url.
func (s *Store) TopicsForPage(url string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pageID, ok := s.pageByURL[url]
	if !ok {
		return nil
	}
	var names []string
	for topicID, pages := range s.links {
		if _, linked := pages[pageID]; linked {
			names = append(names, s.topics[topicID])
		}
	}
	sort.Strings(names)
	return names
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
