package writer

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"cryptonorm/logger"
	"cryptonorm/models"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisSink publishes each record on {prefix}:{msg_type}.
type RedisSink struct {
	client publisher
	prefix string
	log    *logger.Log
}

func NewRedisSink(url, prefix string) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	s := newRedisSink(redis.NewClient(opts), prefix)
	s.log.WithComponent("redis_sink").WithFields(logger.Fields{
		"addr":   opts.Addr,
		"prefix": s.prefix,
	}).Info("redis sink initialized")
	return s, nil
}

func newRedisSink(client publisher, prefix string) *RedisSink {
	if prefix == "" {
		prefix = "cryptonorm"
	}
	return &RedisSink{client: client, prefix: prefix, log: logger.GetLogger()}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Channel(msgType models.MessageType) string {
	return s.prefix + ":" + string(msgType)
}

func (s *RedisSink) Write(ctx context.Context, msg models.Message, line []byte) error {
	if err := s.client.Publish(ctx, s.Channel(msg.Route().MsgType), line).Err(); err != nil {
		return &SinkError{Sink: s.Name(), Err: err}
	}
	logger.RecordFlow("redis", len(line))
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
