package redis_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"anarchy.ttfm/paytr/events"
	eventsredis "anarchy.ttfm/paytr/events/redis"
	"anarchy.ttfm/paytr/utils"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func Test_Publisher(t *testing.T) {
	addr := os.Getenv("PAYTR_REDIS_ADDR")
	if addr == "" {
		t.Skip("PAYTR_REDIS_ADDR not set")
	}

	assertions := assert.New(t)

	ctx, cancel := utils.NewContext()
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	publisher := eventsredis.New(eventsredis.Config{Client: client, Channel: "paytr:test:" + t.Name()})
	stream, err := publisher.Subscribe(ctx)
	assertions.Nil(err, "failed to subscribe")

	sent := events.Event{Sequence: 7, Kind: events.KindPayment, Invoice: "invoice", Amount: 1_500_000_000}
	err = publisher.Publish(ctx, sent)
	assertions.Nil(err, "failed to publish")

	select {
	case received := <-stream:
		assertions.Equal(sent.Sequence, received.Sequence)
		assertions.Equal(sent.Kind, received.Kind)
		assertions.Equal(sent.Amount, received.Amount)
	case <-ctx.Done():
		t.Fatal("event not received")
	}
}

// commands captures the commands sent by a client and answers them without a server
type commands struct {
	mu   sync.Mutex
	args [][]any
	err  error
}

func (c *commands) DialHook(next redis.DialHook) redis.DialHook { return next }

func (c *commands) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.args = append(c.args, cmd.Args())
		return c.err
	}
}

func (c *commands) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func payload(arg any) (b []byte) {
	switch value := arg.(type) {
	case []byte:
		return value
	case string:
		return []byte(value)
	}
	return nil
}

func Test_Encoding(t *testing.T) {
	newClient := func(hook *commands) *redis.Client {
		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
		client.AddHook(hook)
		t.Cleanup(func() { client.Close() })
		return client
	}

	t.Run("Publish", func(t *testing.T) {
		assertions := assert.New(t)

		hook := &commands{}
		publisher := eventsredis.New(eventsredis.Config{Client: newClient(hook)})

		sent := []events.Event{
			{Sequence: 1, Kind: events.KindPayment, Invoice: "first", Amount: 1_500_000_000},
			{Sequence: 2, Kind: events.KindPayout, Invoice: "second", Amount: 100_000_000, Recipient: "0x00000000000000000000000000000000000000aa"},
		}
		err := publisher.Publish(context.TODO(), sent...)
		assertions.Nil(err, "failed to publish")

		if !assertions.Len(hook.args, len(sent), "one message per event") {
			return
		}
		for index, args := range hook.args {
			if !assertions.Len(args, 3) {
				continue
			}
			assertions.Equal("publish", args[0])
			assertions.Equal(eventsredis.DefaultChannel, args[1])

			var decoded events.Event
			assertions.Nil(decoded.FromBytes(payload(args[2])), "failed to decode payload")
			assertions.Equal(sent[index], decoded)
		}
	})

	t.Run("Channel", func(t *testing.T) {
		assertions := assert.New(t)

		hook := &commands{}
		publisher := eventsredis.New(eventsredis.Config{Client: newClient(hook), Channel: "paytr:staging"})
		err := publisher.Publish(context.TODO(), events.Event{Sequence: 3, Kind: events.KindOwedClaimed})
		assertions.Nil(err, "failed to publish")
		if assertions.Len(hook.args, 1) {
			assertions.Equal("paytr:staging", hook.args[0][1])
		}
	})

	t.Run("Failure", func(t *testing.T) {
		assertions := assert.New(t)

		down := errors.New("connection refused")
		hook := &commands{err: down}
		publisher := eventsredis.New(eventsredis.Config{Client: newClient(hook)})
		err := publisher.Publish(context.TODO(),
			events.Event{Sequence: 4, Kind: events.KindPayment},
			events.Event{Sequence: 5, Kind: events.KindPayment},
		)
		assertions.ErrorIs(err, down)
		assertions.Len(hook.args, 1, "publishing stops at the first failure")
	})
}
