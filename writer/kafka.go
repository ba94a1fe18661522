package writer

import (
	"context"
	"fmt"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"cryptonorm/logger"
	"cryptonorm/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink produces each record to {prefix}.{msg_type}, keyed by symbol so
// a symbol's records stay on one partition.
type KafkaSink struct {
	writer messageWriter
	prefix string
	log    *logger.Log
}

func NewKafkaSink(brokers []string, prefix string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	s := newKafkaSink(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}, prefix)
	s.log.WithComponent("kafka_sink").WithFields(logger.Fields{
		"brokers": brokers,
		"prefix":  s.prefix,
	}).Debug("kafka sink initialized")
	return s, nil
}

func newKafkaSink(w messageWriter, prefix string) *KafkaSink {
	if prefix == "" {
		prefix = "cryptonorm"
	}
	return &KafkaSink{writer: w, prefix: prefix, log: logger.GetLogger()}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Topic(msgType models.MessageType) string {
	return s.prefix + "." + string(msgType)
}

func (s *KafkaSink) Write(ctx context.Context, msg models.Message, line []byte) error {
	m := kafka.Message{
		Topic: s.Topic(msg.Route().MsgType),
		Key:   []byte(msg.Key()),
		Value: line,
	}
	if err := s.writer.WriteMessages(ctx, m); err != nil {
		return &SinkError{Sink: s.Name(), Err: err}
	}
	logger.RecordFlow("kafka", len(line))
	return nil
}

func (s *KafkaSink) Close() error {
	s.log.WithComponent("kafka_sink").Debug("closing kafka sink")
	return s.writer.Close()
}
