package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/eduspider/internal/crawler"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "crawl-jobs", crawler.JobEvent{JobID: 1, Status: crawler.JobStatusDone})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)

	id2, err := pub.Publish(context.Background(), "other", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "crawl-jobs", msgs[0].Topic)
	require.Equal(t, "other", msgs[1].Topic)

	msgs[0].Topic = "modified"
	require.Equal(t, "crawl-jobs", pub.Messages()[0].Topic, "Messages() should return a copy")

	events := pub.JobEvents()
	require.Len(t, events, 1)
	require.Equal(t, int64(1), events[0].JobID)
}

func TestPublisherCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Publish(ctx, "crawl-jobs", "payload")
	require.ErrorIs(t, err, context.Canceled)
}
