// Package realtime pushes live vote tallies to websocket viewers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dma-portal/association-api/internal/domain"
)

const MessageTally = "tally"

// Message is the JSON frame sent to viewers.
type Message struct {
	Type      string       `json:"type"`
	Payload   TallyPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

type TallyPayload struct {
	CandidateID string `json:"candidateId"`
	Votes       int64  `json:"votes"`
}

var ErrHubFull = errors.New("realtime hub broadcast queue full")

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains connected viewers and fans tallies out to them. All client bookkeeping
// happens on the Run goroutine.
type Hub struct {
	log *zap.Logger

	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	count chan chan int
	done  chan struct{}
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:        log,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then disconnects every viewer.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("realtime hub started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.log.Info("realtime hub stopped")
			return

		case c := <-h.register:
			h.clients[c] = true
			h.log.Debug("viewer connected", zap.Int("viewers", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.log.Debug("viewer disconnected", zap.Int("viewers", len(h.clients)))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow viewer; drop it rather than stall everyone else.
					delete(h.clients, c)
					close(c.send)
				}
			}

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// Publish queues a tally for every connected viewer. It never blocks on viewers.
func (h *Hub) Publish(ctx context.Context, t domain.Tally) error {
	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	b, err := json.Marshal(Message{
		Type:      MessageTally,
		Payload:   TallyPayload{CandidateID: string(t.CandidateID), Votes: t.Votes},
		Timestamp: at,
	})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrHubFull
	}
}

// Deliver is Publish for callers without a context or error handling (e.g. a pub/sub relay).
func (h *Hub) Deliver(t domain.Tally) {
	if err := h.Publish(context.Background(), t); err != nil {
		h.log.Warn("dropping tally", zap.String("candidateId", string(t.CandidateID)), zap.Error(err))
	}
}

// Viewers reports the number of connected viewers.
func (h *Hub) Viewers(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
	case <-h.done:
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
