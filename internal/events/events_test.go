package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type capturingConn struct {
	msgs []*nats.Msg
	err  error
}

func (c *capturingConn) PublishMsg(m *nats.Msg) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func TestNatsPublisher_PublishesJSONWithTraceHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	conn := &capturingConn{}
	pub := &NatsPublisher{conn: conn}

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	groupID := uint(3)
	require.NoError(t, pub.Publish(ctx, PostEvent{PostID: 7, AuthorID: 2, Author: "leo", GroupID: &groupID, Excerpt: "hi"}))
	require.Len(t, conn.msgs, 1)

	msg := conn.msgs[0]
	assert.Equal(t, SubjectPostCreated, msg.Subject)
	assert.Contains(t, msg.Header.Get("traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &body))
	assert.Equal(t, float64(7), body["post_id"])
	assert.Equal(t, "leo", body["author"])
}

func TestNatsPublisher_Error(t *testing.T) {
	pub := &NatsPublisher{conn: &capturingConn{err: errors.New("nats: connection closed")}}
	err := pub.Publish(context.Background(), CommentEvent{CommentID: 1})
	assert.Error(t, err)
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, SubjectPostEdited, PostEvent{Kind: SubjectPostEdited}.Subject())
	assert.Equal(t, SubjectFollowCreated, FollowEvent{Followed: true}.Subject())
	assert.Equal(t, SubjectFollowDeleted, FollowEvent{}.Subject())
	assert.Equal(t, SubjectCommentCreated, CommentEvent{}.Subject())
}

func TestGated(t *testing.T) {
	conn := &capturingConn{}
	gated := NewGated(&NatsPublisher{conn: conn}, func(actorID uint) bool { return actorID == 1 })

	require.NoError(t, gated.Publish(context.Background(), FollowEvent{UserID: 1, AuthorID: 2, Followed: true}))
	require.NoError(t, gated.Publish(context.Background(), FollowEvent{UserID: 5, AuthorID: 2, Followed: true}))
	assert.Len(t, conn.msgs, 1)

	gated.Close()
	assert.NoError(t, Noop{}.Publish(context.Background(), PostEvent{}))
}
