package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponderReplies(t *testing.T) {
	m, _ := newMarketFixture(t)
	ctx := context.Background()
	c, err := m.AddChatIfMissing(ctx, "p_1", []string{"u_buyer", "u_seller"})
	require.NoError(t, err)

	r := NewResponder(m).WithDelay(func() time.Duration { return time.Millisecond })
	t.Cleanup(r.Close)

	msg, err := r.Send(ctx, c.ID, "u_buyer", "Is this still available?")
	require.NoError(t, err)
	require.NotNil(t, msg)

	require.Eventually(t, func() bool {
		got, _ := m.GetChat(c.ID)
		return len(got.Messages) == 2
	}, time.Second, 5*time.Millisecond)

	got, _ := m.GetChat(c.ID)
	assert.Equal(t, "u_buyer", got.Messages[0].From)
	assert.Equal(t, "u_seller", got.Messages[1].From)
	assert.Equal(t, AutoReplyText, got.Messages[1].Text)
}

func TestResponderCloseCancelsPending(t *testing.T) {
	m, _ := newMarketFixture(t)
	ctx := context.Background()
	c, err := m.AddChatIfMissing(ctx, "p_1", []string{"u_buyer", "u_seller"})
	require.NoError(t, err)

	r := NewResponder(m).WithDelay(func() time.Duration { return time.Hour })
	_, err = r.Send(ctx, c.ID, "u_buyer", "hello")
	require.NoError(t, err)
	r.Close()

	got, _ := m.GetChat(c.ID)
	assert.Len(t, got.Messages, 1)

	_, err = r.Send(ctx, c.ID, "u_buyer", "anyone?")
	require.NoError(t, err)
	got, _ = m.GetChat(c.ID)
	assert.Len(t, got.Messages, 2, "messages still post after Close, replies do not")
}

func TestResponderUnknownChat(t *testing.T) {
	m, _ := newMarketFixture(t)
	r := NewResponder(m)
	t.Cleanup(r.Close)

	msg, err := r.Send(context.Background(), "c_missing", "u_buyer", "hello")
	assert.NoError(t, err)
	assert.Nil(t, msg)
}
