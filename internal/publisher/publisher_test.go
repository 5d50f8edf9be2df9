package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scottlangford2/research-scraper/internal/publisher/memory"
)

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", errors.New("broker down")
}

func TestFanoutPublishesToAllBackends(t *testing.T) {
	t.Parallel()

	a, b := memory.New(), memory.New()
	f := NewFanout(nil,
		Backend{Name: "a", Publisher: a},
		Backend{Name: "nil"},
		Backend{Name: "b", Publisher: b},
	)
	require.Equal(t, 2, f.Len())

	id, err := f.Publish(context.Background(), "runs", map[string]string{"run_id": "r1"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)
	require.Len(t, a.Messages(), 1)
	require.Len(t, b.Messages(), 1)
}

func TestFanoutIsolatesFailures(t *testing.T) {
	t.Parallel()

	ok := memory.New()
	f := NewFanout(nil, Backend{Name: "kafka", Publisher: failingPublisher{}}, Backend{Name: "memory", Publisher: ok})

	id, err := f.Publish(context.Background(), "runs", "payload")
	require.ErrorContains(t, err, "kafka: broker down")
	require.Equal(t, "memory-1", id)
	require.Len(t, ok.Messages(), 1)
}
