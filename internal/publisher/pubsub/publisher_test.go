package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	project   = "projects/test-project"
	topicName = project + "/topics/rfp-runs"
	subName   = project + "/subscriptions/rfp-runs-sub"
)

type keyedPayload struct {
	RunID string `json:"run_id"`
}

func (k keyedPayload) MessageKey() string { return k.RunID }

func newTestClient(t *testing.T) *pubsub.Client {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topicName})
	require.NoError(t, err)
	_, err = client.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{Name: subName, Topic: topicName})
	require.NoError(t, err)
	return client
}

func TestPublishDeliversJSONWithKey(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	pub := New(client, topicName)
	t.Cleanup(pub.Close)

	id, err := pub.Publish(context.Background(), "", keyedPayload{RunID: "run-1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	received := make(chan *pubsub.Message, 1)
	go func() {
		_ = client.Subscriber(subName).Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case received <- msg:
			default:
			}
			cancel()
		})
	}()

	select {
	case msg := <-received:
		var got keyedPayload
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		require.Equal(t, "run-1", got.RunID)
		require.Equal(t, "run-1", msg.Attributes[KeyAttribute])
	case <-time.After(10 * time.Second):
		t.Fatal("message not received")
	}
}

func TestPublishRequiresTopicAndClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "").Publish(context.Background(), "t", "x")
	require.Error(t, err)

	client := newTestClient(t)
	_, err = New(client, "").Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "topic is not set")
}

func TestPubsubCarrier(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc")
	require.Equal(t, "00-abc", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
