package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisMirror forwards activity signals to a Redis Pub/Sub channel and keeps
// the latest State under a key, so UI chrome in other processes can follow
// the activity of this one. Signals are queued and written by Run; Start and
// End never wait on Redis. Every signal is published, but the stored state
// only moves forward in Seq order.
type RedisMirror struct {
	redis   *redis.Client
	key     string
	channel string
	queue   chan State
	written uint64
	logger  zerolog.Logger
}

// NewRedisMirror creates a mirror for coordinator and subscribes it.
// Call Run to start writing and the returned unsubscribe to detach.
func NewRedisMirror(redisClient *redis.Client, coordinator *Coordinator, logger zerolog.Logger) (*RedisMirror, func()) {
	m := &RedisMirror{
		redis:   redisClient,
		key:     RedisKeyState,
		channel: RedisChannel,
		queue:   make(chan State, 256),
		logger:  logger.With().Str("component", "activity-mirror").Logger(),
	}
	return m, coordinator.Watch(m.observe)
}

func (m *RedisMirror) observe(ch Change) {
	state := State{
		InFlight:   ch.InFlight,
		Busy:       ch.InFlight > 0,
		LastSignal: ch.Signal.String(),
		LastChange: time.Now(),
		Seq:        ch.Seq,
	}

	select {
	case m.queue <- state:
	default:
		activityMirrorDroppedTotal.Inc()
	}
}

// Run writes queued signals until ctx is cancelled.
func (m *RedisMirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case state := <-m.queue:
			if err := m.write(ctx, state); err != nil {
				activityMirrorErrorsTotal.Inc()
				m.logger.Warn().Err(err).Str("signal", state.LastSignal).Msg("Failed to mirror activity")
			}
		}
	}
}

// advance reports whether state is newer than the last stored one and, if
// so, records it as stored. Only Run calls it.
func (m *RedisMirror) advance(state State) bool {
	if state.Seq <= m.written {
		return false
	}
	m.written = state.Seq
	return true
}

func (m *RedisMirror) write(ctx context.Context, state State) error {
	pipe := m.redis.Pipeline()
	if m.advance(state) {
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("marshal activity state: %w", err)
		}
		pipe.Set(ctx, m.key, data, stateRetention)
	}
	pipe.Publish(ctx, m.channel, state.LastSignal)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store activity state in redis: %w", err)
	}

	m.logger.Debug().
		Int("in_flight", state.InFlight).
		Str("signal", state.LastSignal).
		Msg("Activity mirrored")
	return nil
}

// GetState reads the mirrored state. It returns an idle zero state if
// nothing has been mirrored yet.
func GetState(ctx context.Context, redisClient *redis.Client) (*State, error) {
	data, err := redisClient.Get(ctx, RedisKeyState).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("get activity state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse activity state: %w", err)
	}
	return &state, nil
}

// Listen subscribes to mirrored signals. The returned channel is closed when
// ctx is cancelled.
func Listen(ctx context.Context, redisClient *redis.Client) (<-chan Signal, error) {
	sub := redisClient.Subscribe(ctx, RedisChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", RedisChannel, err)
	}

	out := make(chan Signal)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				s := parseSignal(msg.Payload)
				if s == 0 {
					continue
				}
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func parseSignal(name string) Signal {
	switch name {
	case "begin":
		return SignalBegin
	case "end":
		return SignalEnd
	default:
		return 0
	}
}
