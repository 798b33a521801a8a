package sinks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/progress-monitor/internal/progress"
)

func TestPubSubSinkPublishesRecords(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "progress-events")
	require.NoError(t, err)

	sink, err := NewPubSubSink(topic, nil)
	require.NoError(t, err)

	ts := time.Unix(1700000000, 0).UTC()
	require.NoError(t, sink.Consume(ctx, []progress.Event{
		{Kind: progress.KindStart, SourceID: "s1", Resource: "https://example.com/f", Method: "GET", Expected: 10, TS: ts},
		{Kind: progress.KindFinish, SourceID: "s1", Resource: "https://example.com/f", Method: "GET", State: progress.StateDelete, Progress: 10, Expected: 10, TS: ts},
	}))
	require.NoError(t, sink.Close(ctx))

	msgs := srv.Messages()
	require.Len(t, msgs, 2)

	kinds := map[string]bool{}
	for _, m := range msgs {
		var rec progress.Record
		require.NoError(t, json.Unmarshal(m.Data, &rec))
		require.Equal(t, "s1", rec.SourceID)
		require.Equal(t, string(rec.Kind), m.Attributes["kind"])
		kinds[m.Attributes["kind"]] = true
		if rec.Kind == progress.KindFinish {
			require.True(t, rec.Complete)
			require.Equal(t, "DELETE", rec.State)
		}
	}
	require.True(t, kinds["START"])
	require.True(t, kinds["FINISH"])
}

func TestNewPubSubSinkRequiresTopic(t *testing.T) {
	t.Parallel()

	_, err := NewPubSubSink(nil, nil)
	require.Error(t, err)
}
