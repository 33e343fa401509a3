package sinks

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/resink-ai/resinker/internal/emitrecord"
	"github.com/resink-ai/resinker/internal/specdef"
)

// kafkaWriter implements the "kafka" sink type over Redis Pub/Sub (see
// DESIGN.md's adaptation note): topic_mapping[event_type] (falling back to
// default_topic) becomes the Redis channel name, and kafka_brokers is
// read as a Redis host:port address.
type kafkaWriter struct {
	client       *redis.Client
	topicMapping map[string]string
	defaultTopic string
	format       specdef.SinkFormat
}

func newKafkaWriter(cfg specdef.OutputSink) (recordWriter, error) {
	if cfg.KafkaBrokers == "" {
		return nil, fmt.Errorf("kafka sink requires kafka_brokers")
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.KafkaBrokers})
	return &kafkaWriter{
		client:       client,
		topicMapping: cfg.TopicMapping,
		defaultTopic: cfg.DefaultTopic,
		format:       cfg.Format,
	}, nil
}

func (w *kafkaWriter) topicFor(eventType string) string {
	if topic, ok := w.topicMapping[eventType]; ok {
		return topic
	}
	return w.defaultTopic
}

func (w *kafkaWriter) Write(rec emitrecord.Record) error {
	payload, err := encode(rec, w.format)
	if err != nil {
		return err
	}
	topic := w.topicFor(rec.EventType)
	if topic == "" {
		return fmt.Errorf("no topic_mapping or default_topic for event type %q", rec.EventType)
	}
	return w.client.Publish(context.Background(), topic, payload).Err()
}

func (w *kafkaWriter) Close() error {
	return w.client.Close()
}
