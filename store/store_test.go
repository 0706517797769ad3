// Copyright 2026 The Gozo Authors.

package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/gozoproject/gozo/record"
	"github.com/gozoproject/gozo/store"
)

// startTestServer boots an embedded, JetStream-enabled NATS server on an
// ephemeral port, the same technique pme-sh/pmesh and the akwick nats-server
// reference code use for in-process testing, and returns a connected client.
func startTestServer(t *testing.T) (*natsserver.Server, *nats.Conn) {
	t.Helper()

	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}
	srv, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server did not become ready")
	}
	t.Cleanup(srv.Shutdown)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	return srv, nc
}

func TestOpen_CreatesBucketIfAbsent(t *testing.T) {
	_, nc := startTestServer(t)

	st, err := store.Open(nc, "gozo-schedules")
	require.NoError(t, err)
	require.NotNil(t, st)

	// Reopening the same bucket must not fail: Open is idempotent.
	_, err = store.Open(nc, "gozo-schedules")
	require.NoError(t, err)
}

func TestPutGetDelete_RoundTrips(t *testing.T) {
	_, nc := startTestServer(t)
	st, err := store.Open(nc, "gozo-schedules")
	require.NoError(t, err)

	ctx := context.Background()
	fireAt := time.Unix(1700000000, 0).UTC()
	headers := map[string]string{"X-Trace": "abc"}

	require.NoError(t, st.Put(ctx, "job-1", fireAt, "r.reply", []byte("hello"), headers))

	entries, err := st.Iterate(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	require.Equal(t, "job-1", got.ID)
	require.True(t, got.Record.FireAt.Equal(fireAt))

	wantRecord := record.Record{
		FireAt:       got.Record.FireAt, // compared separately above; time.Time diffs noisily under pretty
		ReplySubject: "r.reply",
		Payload:      []byte("hello"),
		Headers:      headers,
	}
	if diff := pretty.Compare(wantRecord, got.Record); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, st.Delete(ctx, "job-1"))

	entries, err = st.Iterate(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestDelete_UnknownIDIsNotAnError(t *testing.T) {
	_, nc := startTestServer(t)
	st, err := store.Open(nc, "gozo-schedules")
	require.NoError(t, err)

	require.NoError(t, st.Delete(context.Background(), "never-existed"))
}

func TestPut_OverwriteKeepsSingleLatestValue(t *testing.T) {
	_, nc := startTestServer(t)
	st, err := store.Open(nc, "gozo-schedules")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "job-2", time.Unix(100, 0).UTC(), "r.a", nil, nil))
	require.NoError(t, st.Put(ctx, "job-2", time.Unix(200, 0).UTC(), "r.b", nil, nil))

	entries, err := st.Iterate(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "r.b", entries[0].Record.ReplySubject)
}

func TestIterate_ManyEntries(t *testing.T) {
	_, nc := startTestServer(t)
	st, err := store.Open(nc, "gozo-schedules")
	require.NoError(t, err)

	ctx := context.Background()
	const n = 25
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("job-%02d", i)
		require.NoError(t, st.Put(ctx, id, time.Unix(int64(i), 0).UTC(), "r.x", nil, nil))
	}

	entries, err := st.Iterate(ctx)
	require.NoError(t, err)
	require.Len(t, entries, n)
}
