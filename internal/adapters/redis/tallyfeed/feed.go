package tallyfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dma-portal/association-api/internal/domain"
)

// DefaultChannel is the pub/sub channel tallies are fanned out on.
const DefaultChannel = "tallies"

type message struct {
	CandidateID string    `json:"candidateId"`
	Votes       int64     `json:"votes"`
	At          time.Time `json:"at"`
}

// Feed publishes tallies to a redis channel and relays the channel to a local sink,
// so a vote cast on any instance reaches viewers connected to every instance.
type Feed struct {
	client  *goredis.Client
	channel string
	log     *zap.Logger
}

func NewFeed(client *goredis.Client, channel string, log *zap.Logger) *Feed {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{client: client, channel: channel, log: log}
}

func (f *Feed) Publish(ctx context.Context, t domain.Tally) error {
	if f.client == nil {
		return errors.New("nil redis client")
	}
	b, err := json.Marshal(message{CandidateID: string(t.CandidateID), Votes: t.Votes, At: t.At.UTC()})
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, f.channel, b).Err(); err != nil {
		return fmt.Errorf("publish tally: %w", err)
	}
	return nil
}

// Relay subscribes to the channel and hands each tally to deliver until ctx is cancelled.
// Malformed messages are logged and skipped.
func (f *Feed) Relay(ctx context.Context, deliver func(domain.Tally)) error {
	if f.client == nil {
		return errors.New("nil redis client")
	}
	sub := f.client.Subscribe(ctx, f.channel)
	defer sub.Close()

	// Wait for the subscription confirmation so publishes after Relay starts are not missed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", f.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				f.log.Warn("dropping malformed tally message", zap.Error(err))
				continue
			}
			deliver(domain.Tally{CandidateID: domain.CandidateID(m.CandidateID), Votes: m.Votes, At: m.At})
		}
	}
}
