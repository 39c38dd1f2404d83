package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tracePrefix       = "pdfqa:trace:"
	corpusEventStream = "pdfqa:corpus"
	streamPrefix      = "pdfqa:build:"
	watchBlock        = 5 * time.Second
)

type RedisTransport struct {
	rdb *redis.Client
}

func NewRedisTransport(rdb *redis.Client) *RedisTransport {
	return &RedisTransport{
		rdb: rdb,
	}
}

func (t *RedisTransport) GetMessageStream(id string) (MessageStream, error) {
	if len(id) == 0 {
		return nil, ErrInvalidStream
	}
	rs := &RedisStream{
		id:          id,
		lastRedisID: "0",
		rdb:         t.rdb,
	}
	return rs, nil
}

func (t *RedisTransport) SetTrace(ctx context.Context, trace *RequestTrace) error {
	key := tracePrefix + trace.ID
	pipe := t.rdb.TxPipeline()
	pipe.HSet(ctx, key, trace)
	pipe.Expire(ctx, key, TraceExpiry)
	_, err := pipe.Exec(ctx)
	return err
}

func (t *RedisTransport) GetTrace(ctx context.Context, traceId string) (*RequestTrace, error) {
	cmd := t.rdb.HGetAll(ctx, tracePrefix+traceId)
	vals, err := cmd.Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTraceNotFound, traceId)
	}

	var trace RequestTrace
	if err := cmd.Scan(&trace); err != nil {
		return nil, fmt.Errorf("failed to scan trace %s: %w", traceId, err)
	}
	return &trace, nil
}

func (t *RedisTransport) PublishCorpus(ctx context.Context, ev CorpusEvent) error {
	payloadJSON, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return t.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: corpusEventStream,
		MaxLen: 100,
		Approx: true,
		ID:     "*",
		Values: map[string]any{
			"payload": string(payloadJSON),
		},
	}).Err()
}

func (t *RedisTransport) WatchCorpus(ctx context.Context, fn func(CorpusEvent) error) error {
	lastID := "$"
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rstreams, err := t.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{corpusEventStream, lastID},
			Block:   watchBlock,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read corpus events: %w", err)
		}

		for _, msg := range rstreams[0].Messages {
			lastID = msg.ID

			var ev CorpusEvent
			if err := decodePayload(msg.Values, &ev); err != nil {
				slog.Warn("skipping malformed corpus event", "id", msg.ID, "err", err)
				continue
			}
			if err := fn(ev); err != nil {
				return err
			}
		}
	}
}

type RedisStream struct {
	id          string
	lastRedisID string

	rdb *redis.Client
}

func (s RedisStream) key() string {
	return streamPrefix + s.id
}

func (s RedisStream) Send(ctx context.Context, payload MessageStreamPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key(),
		ID:     "*",
		Values: map[string]any{
			"payload": string(payloadJSON),
		},
	})
	pipe.Expire(ctx, s.key(), TraceExpiry)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return err
	}

	slog.Debug("sent stream message", "stream", s.id, "status", payload.Status)
	return nil
}

func (s *RedisStream) Recv(ctx context.Context) (*MessageStreamPayload, error) {
	rstreams, err := s.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.key(), s.lastRedisID},
		Count:   1,
		Block:   0,
	}).Result()
	if err != nil {
		return nil, err
	}

	msg := rstreams[0].Messages[0]
	s.lastRedisID = msg.ID

	var payload MessageStreamPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (s *RedisStream) GetID() string {
	return s.id
}

func decodePayload(values map[string]any, v any) error {
	payloadJSON, ok := values["payload"].(string)
	if !ok {
		return fmt.Errorf("failed to read payload from stream message")
	}
	if err := json.Unmarshal([]byte(payloadJSON), v); err != nil {
		return fmt.Errorf("failed to deserialize stream message payload: %w", err)
	}
	return nil
}
