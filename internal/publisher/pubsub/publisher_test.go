package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/eduspider/internal/crawler"
)

func newTestPublisher(t *testing.T) (*Publisher, *pstest.Server) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	_, err = client.CreateTopic(ctx, "crawl-jobs")
	require.NoError(t, err)

	pub := New(client)
	t.Cleanup(func() { _ = pub.Close() })
	return pub, srv
}

func TestPublisherPublishesJobEvent(t *testing.T) {
	pub, srv := newTestPublisher(t)

	event := crawler.JobEvent{JobID: 7, RunID: "run-7", SeedURL: "https://example.edu", Status: crawler.JobStatusDone, PagesFound: 3}
	id, err := pub.Publish(context.Background(), "crawl-jobs", event)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "7", msgs[0].Attributes["job_id"])
	require.Equal(t, "done", msgs[0].Attributes["status"])
	require.Equal(t, "run-7", msgs[0].Attributes["run_id"])

	var decoded crawler.JobEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &decoded))
	require.Equal(t, event.SeedURL, decoded.SeedURL)
	require.Equal(t, 3, decoded.PagesFound)
}

func TestPublisherUnknownTopic(t *testing.T) {
	pub, _ := newTestPublisher(t)

	_, err := pub.Publish(context.Background(), "missing", map[string]string{"k": "v"})
	require.Error(t, err)
}

func TestPublisherNotConfigured(t *testing.T) {
	_, err := (&Publisher{}).Publish(context.Background(), "crawl-jobs", "x")
	require.Error(t, err)
}

func TestAttributesFor(t *testing.T) {
	require.Nil(t, attributesFor("plain"))
	require.Nil(t, attributesFor((*crawler.JobEvent)(nil)))
	attrs := attributesFor(&crawler.JobEvent{JobID: 2, Status: crawler.JobStatusError})
	require.Equal(t, map[string]string{"job_id": "2", "status": "error"}, attrs)
}
