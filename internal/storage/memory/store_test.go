package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/eduspider/internal/crawler"
)

func TestStoreJobLifecycle(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()

	jobID, err := store.CreateJob(ctx, "https://example.edu", 2)
	require.NoError(t, err)
	job, ok := store.Job(jobID)
	require.True(t, ok)
	require.Equal(t, crawler.JobStatusRunning, job.Status)
	require.Equal(t, 2, job.MaxDepth)

	require.NoError(t, store.FinishJob(ctx, jobID, 3, crawler.JobStatusDone))
	job, _ = store.Job(jobID)
	require.Equal(t, crawler.JobStatusDone, job.Status)
	require.Equal(t, 3, job.PagesFound)

	require.ErrorIs(t, store.FinishJob(ctx, 99, 0, crawler.JobStatusDone), crawler.ErrNotFound)
}

func TestStoreSavePageDuplicate(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	jobID, err := store.CreateJob(ctx, "https://example.edu", 1)
	require.NoError(t, err)

	input := crawler.PageInput{URL: "https://example.edu/a", Title: "A", Domain: "example.edu", JobID: jobID}
	id, err := store.SavePage(ctx, input)
	require.NoError(t, err)
	require.NotZero(t, id)

	exists, err := store.PageExists(ctx, input.URL)
	require.NoError(t, err)
	require.True(t, exists)

	_, err = store.SavePage(ctx, input)
	require.ErrorIs(t, err, crawler.ErrDuplicate)

	count, err := store.CountPagesForJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestStoreTopicsAndCatalog(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	jobID, err := store.CreateJob(ctx, "https://example.edu", 1)
	require.NoError(t, err)
	first, err := store.SavePage(ctx, crawler.PageInput{URL: "https://example.edu/1", JobID: jobID})
	require.NoError(t, err)
	second, err := store.SavePage(ctx, crawler.PageInput{URL: "https://example.edu/2", JobID: jobID})
	require.NoError(t, err)

	physics, err := store.GetOrCreateTopic(ctx, "physics")
	require.NoError(t, err)
	again, err := store.GetOrCreateTopic(ctx, "physics")
	require.NoError(t, err)
	require.Equal(t, physics, again)
	biology, err := store.GetOrCreateTopic(ctx, "biology")
	require.NoError(t, err)
	_, err = store.GetOrCreateTopic(ctx, "unused")
	require.NoError(t, err)

	require.NoError(t, store.LinkPageTopic(ctx, first, physics))
	require.NoError(t, store.LinkPageTopic(ctx, first, physics))
	require.NoError(t, store.LinkPageTopic(ctx, second, physics))
	require.NoError(t, store.LinkPageTopic(ctx, second, biology))
	require.ErrorIs(t, store.LinkPageTopic(ctx, 42, physics), crawler.ErrNotFound)

	topics, err := store.ListTopics(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []crawler.TopicCount{
		{Name: "physics", PageCount: 2},
		{Name: "biology", PageCount: 1},
	}, topics)

	limited, err := store.ListTopics(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	pages, err := store.ListPagesForTopic(ctx, "physics", 0)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Equal(t, "https://example.edu/2", pages[0].URL)

	_, err = store.ListPagesForTopic(ctx, "chemistry", 0)
	require.ErrorIs(t, err, crawler.ErrNotFound)

	require.Equal(t, []string{"biology", "physics"}, store.TopicsForPage("https://example.edu/2"))
}

func TestStoreListJobsNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	_, err := store.CreateJob(ctx, "https://a.edu", 1)
	require.NoError(t, err)
	_, err = store.CreateJob(ctx, "https://b.edu", 1)
	require.NoError(t, err)

	jobs, err := store.ListJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "https://b.edu", jobs[0].SeedURL)
}
