package redis

import (
	"context"
	"fmt"

	"anarchy.ttfm/paytr/events"
	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "paytr:events"

type Config struct {
	Client *redis.Client
	// Pub/sub channel, DefaultChannel when empty
	Channel string
}

// Publisher fans events out over redis pub/sub
type Publisher struct {
	client  *redis.Client
	channel string
}

var _ events.Publisher = (*Publisher)(nil)

func New(config Config) (p *Publisher) {
	p = &Publisher{
		client:  config.Client,
		channel: config.Channel,
	}
	if p.channel == "" {
		p.channel = DefaultChannel
	}
	return p
}

func (p *Publisher) Publish(ctx context.Context, evs ...events.Event) (err error) {
	for _, event := range evs {
		err = p.client.Publish(ctx, p.channel, event.Bytes()).Err()
		if err != nil {
			return fmt.Errorf("failed to publish event %s: %w", event.String(), err)
		}
	}
	return nil
}

// Subscribe streams events published on the channel until ctx is done
func (p *Publisher) Subscribe(ctx context.Context) (stream <-chan events.Event, err error) {
	pubsub := p.client.Subscribe(ctx, p.channel)
	_, err = pubsub.Receive(ctx)
	if err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := make(chan events.Event, 100)
	go func() {
		defer close(ch)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case message, ok := <-messages:
				if !ok {
					return
				}
				var event events.Event
				if event.FromBytes([]byte(message.Payload)) != nil {
					continue
				}
				select {
				case ch <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
