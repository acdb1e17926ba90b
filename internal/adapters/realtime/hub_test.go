package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dma-portal/association-api/internal/domain"
)

func waitForViewers(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := h.Viewers(context.Background())
		if err != nil {
			t.Fatalf("Viewers err=%v", err)
		}
		if n == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("viewers never reached %d", want)
}

func TestHub_BroadcastsTallyToViewers(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(nil)
	go h.Run(ctx)

	srv := httptest.NewServer(h)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial err=%v", err)
	}
	defer conn.Close()

	waitForViewers(t, h, 1)

	if err := h.Publish(ctx, domain.Tally{CandidateID: "can1", Votes: 121, At: time.Unix(100, 0).UTC()}); err != nil {
		t.Fatalf("Publish err=%v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage err=%v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal err=%v", err)
	}
	if msg.Type != MessageTally || msg.Payload.CandidateID != "can1" || msg.Payload.Votes != 121 {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestHub_ViewerDisconnectUnregisters(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(nil)
	go h.Run(ctx)

	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial err=%v", err)
	}
	waitForViewers(t, h, 1)

	_ = conn.Close()
	waitForViewers(t, h, 0)
}

func TestHub_PublishWithoutViewersDoesNotBlock(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(nil)
	go h.Run(ctx)

	for i := 0; i < 10; i++ {
		if err := h.Publish(ctx, domain.Tally{CandidateID: "can1", Votes: int64(i)}); err != nil {
			t.Fatalf("Publish err=%v", err)
		}
	}
}
