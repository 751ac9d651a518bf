package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(id string, topics ...string) *Client {
	return &Client{ID: id, Topics: topics, Send: make(chan []byte, 8)}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient("c1", TopicAll, "bed:1")

	hub.Register(c)
	assert.Equal(t, 1, hub.ClientCount())
	assert.Equal(t, 1, hub.TopicCount("bed:1"))

	hub.Unregister(c)
	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0, hub.TopicCount("bed:1"))

	_, open := <-c.Send
	assert.False(t, open, "send channel is closed on unregister")

	assert.NotPanics(t, func() { hub.Unregister(c) })
}

func TestEvent_Topics(t *testing.T) {
	e := Event{Type: TypeBedAdmitted, BedID: "b1", Department: "cardiology"}
	assert.Equal(t, []string{TopicAll, "bed:b1", "department:cardiology"}, e.Topics())
	assert.Equal(t, []string{TopicAll}, Event{Type: TypeQueueAssigned}.Topics())
}

func TestHub_PublishRoutesByTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	board := newClient("board", TopicAll)
	ward := newClient("ward", "department:icu")
	other := newClient("other", "bed:zzz")
	both := newClient("both", TopicAll, "bed:b1")
	for _, c := range []*Client{board, ward, other, both} {
		hub.Register(c)
	}

	require.NoError(t, hub.Publish(context.Background(), Event{Type: TypeBedAvailable, BedID: "b1", Department: "icu"}))

	assert.Len(t, board.Send, 1)
	assert.Len(t, ward.Send, 1)
	assert.Len(t, other.Send, 0)
	assert.Len(t, both.Send, 1, "a client subscribed to several matching topics gets one copy")

	var got Event
	require.NoError(t, json.Unmarshal(<-board.Send, &got))
	assert.Equal(t, TypeBedAvailable, got.Type)
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient("c1")
	hub.Register(c)

	hub.ProcessMessage(c, ClientMessage{Action: "subscribe", Topics: []string{"bed:1", "bed:2"}})
	assert.Equal(t, 1, hub.TopicCount("bed:2"))

	hub.ProcessMessage(c, ClientMessage{Action: "unsubscribe", Topics: []string{"bed:2"}})
	assert.Equal(t, 0, hub.TopicCount("bed:2"))
	assert.Equal(t, []string{"bed:1"}, c.Topics)
}

func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := &Client{ID: "slow", Topics: []string{TopicAll}, Send: make(chan []byte, 1)}
	hub.Register(c)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			hub.Publish(context.Background(), Event{Type: TypeBedAdmitted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow client")
	}
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, Event) error {
	f.calls++
	return errors.New("down")
}

func TestMulti_PublishesToAll(t *testing.T) {
	f1, f2 := &failingPublisher{}, &failingPublisher{}
	err := Multi{f1, Nop{}, f2}.Publish(context.Background(), Event{Type: TypeBedAdmitted})
	assert.Error(t, err)
	assert.Equal(t, 1, f1.calls)
	assert.Equal(t, 1, f2.calls)
}

func TestHandler_WebsocketRoundTrip(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, nil).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/beds?topic=bed:42"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.TopicCount("bed:42") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), Event{Type: TypeBedDischarged, BedID: "42"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, TypeBedDischarged, got.Type)
	assert.Equal(t, "42", got.BedID)
}

func TestHandler_RejectsUnknownOrigin(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, []string{"https://board.example.org"}).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/beds"
	header := map[string][]string{"Origin": {"https://evil.example.com"}}
	_, _, err := websocket.DefaultDialer.Dial(url, header)
	assert.Error(t, err)
}
