package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "rfp-runs", map[string]string{"run_id": "r1"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "rfp-records", "hash-1")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "rfp-runs", msgs[0].Topic)
	require.Equal(t, []any{"hash-1"}, pub.Topic("rfp-records"))

	msgs[0].Topic = "modified"
	require.Equal(t, "rfp-runs", pub.Messages()[0].Topic)
}
