package changefeed

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return hub, cancel
}

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestEvent(t *testing.T) {
	e := NewEvent("deal", ActionUpdated, 7)
	assert.Equal(t, "deal.updated", e.Type)
	assert.Equal(t, "deal", e.Record())
	assert.Equal(t, uint(7), e.ID)
}

func TestHub_PublishSubscribe(t *testing.T) {
	hub, _ := startHub(t)
	ctx := context.Background()

	all, err := hub.Subscribe(ctx)
	require.NoError(t, err)
	bills, err := hub.Subscribe(ctx, "bill")
	require.NoError(t, err)

	hub.Publish(NewEvent("deal", ActionCreated, 1))
	hub.Publish(NewEvent("bill", "approved", 2))

	assert.Equal(t, "deal.created", receive(t, all).Type)
	assert.Equal(t, "bill.approved", receive(t, all).Type)
	assert.Equal(t, "bill.approved", receive(t, bills).Type)

	hub.Unsubscribe(all)
	_, ok := <-all.C
	assert.False(t, ok)
	assert.Equal(t, 1, hub.Len())
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	hub, _ := startHub(t)

	slow, err := hub.Subscribe(context.Background())
	require.NoError(t, err)

	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Publish(NewEvent("job", ActionUpdated, uint(i)))
	}

	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	n := 0
	for range slow.C {
		n++
	}
	assert.Equal(t, subscriberBuffer, n)

	hub.Unsubscribe(slow)
}

func TestHub_Shutdown(t *testing.T) {
	hub, cancel := startHub(t)

	sub, err := hub.Subscribe(context.Background())
	require.NoError(t, err)

	cancel()
	_, ok := <-sub.C
	assert.False(t, ok)

	_, err = hub.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	hub.Publish(NewEvent("deal", ActionDeleted, 1))
	hub.Unsubscribe(sub)
}

func TestHub_WebSocket(t *testing.T) {
	hub, _ := startHub(t)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?records=deal"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(NewEvent("job", ActionCreated, 3))
	hub.Publish(NewEvent("deal", ActionCreated, 4))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, "deal.created", e.Type)
	assert.Equal(t, uint(4), e.ID)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
