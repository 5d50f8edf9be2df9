package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	writes [][]kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.writes = append(w.writes, msgs)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type recordEvent struct {
	Hash   string `json:"hash"`
	Status string `json:"status"`
}

func (e recordEvent) MessageKey() string { return e.Hash }

func TestPublishKeysAndEncodes(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := &Publisher{writer: w}

	id, err := p.Publish(context.Background(), "rfp-records", recordEvent{Hash: "abc", Status: "NEW"})
	require.NoError(t, err)
	require.Equal(t, "rfp-records:abc", id)
	require.Len(t, w.writes, 1)

	msg := w.writes[0][0]
	require.Equal(t, "rfp-records", msg.Topic)
	require.Equal(t, []byte("abc"), msg.Key)
	var got recordEvent
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	require.Equal(t, "NEW", got.Status)
	require.Equal(t, "application/json", (&headerCarrier{msg: &msg}).Get("content-type"))
}

func TestPublishAllBatches(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := &Publisher{writer: w}

	n, err := p.PublishAll(context.Background(), "rfp-records", []any{
		recordEvent{Hash: "a"}, recordEvent{Hash: "b"}, map[string]string{"unkeyed": "x"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Len(t, w.writes, 1)
	require.Len(t, w.writes[0], 3)
	require.Nil(t, w.writes[0][2].Key)

	n, err = p.PublishAll(context.Background(), "rfp-records", nil)
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, p.Close())
	require.True(t, w.closed)
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	p := &Publisher{writer: &fakeWriter{err: errors.New("leader not available")}}
	_, err := p.Publish(context.Background(), "runs", "x")
	require.ErrorContains(t, err, "leader not available")

	_, err = p.Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "topic is not set")

	_, err = New(Config{})
	require.Error(t, err)
}

func TestHeaderCarrierOverwrites(t *testing.T) {
	t.Parallel()

	msg := kafkago.Message{}
	c := &headerCarrier{msg: &msg}
	c.Set("traceparent", "one")
	c.Set("traceparent", "two")
	require.Equal(t, "two", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
