package objectstore_test

import (
	"context"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-outreach/internal/objectstore"
)

// startTestServer starts an in-process JetStream-enabled NATS server.
func startTestServer(t *testing.T) (*server.Server, nats.JetStreamContext) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	return natsServer, jetstreamContext
}

func TestStore_UploadDownload(t *testing.T) {
	t.Parallel()

	_, jetstreamContext := startTestServer(t)

	store, err := objectstore.New(jetstreamContext, "test-bucket")
	require.NoError(t, err)
	assert.Equal(t, "test-bucket", store.Bucket())

	ctx := context.Background()
	csv := []byte("First Name,Company Name\nSam,Acme\n")

	require.NoError(t, store.Upload(ctx, "leads.csv", csv))

	downloaded, err := store.Download(ctx, "leads.csv")
	require.NoError(t, err)
	assert.Equal(t, csv, downloaded)

	require.NoError(t, store.Upload(ctx, "leads.csv", []byte("replaced")))

	downloaded, err = store.Download(ctx, "leads.csv")
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(downloaded))
}

func TestStore_BindsToExistingBucket(t *testing.T) {
	t.Parallel()

	_, jetstreamContext := startTestServer(t)

	first, err := objectstore.New(jetstreamContext, "shared")
	require.NoError(t, err)
	require.NoError(t, first.Upload(context.Background(), "k", []byte("v")))

	second, err := objectstore.New(jetstreamContext, "shared")
	require.NoError(t, err)

	data, err := second.Download(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(data))
}

func TestStore_MissingObject(t *testing.T) {
	t.Parallel()

	_, jetstreamContext := startTestServer(t)

	store, err := objectstore.New(jetstreamContext, "empty")
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "nope")
	require.ErrorIs(t, err, nats.ErrObjectNotFound)
}

func TestStore_CanceledContext(t *testing.T) {
	t.Parallel()

	_, jetstreamContext := startTestServer(t)

	store, err := objectstore.New(jetstreamContext, "canceled")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, store.Upload(ctx, "k", []byte("v")), context.Canceled)
}
