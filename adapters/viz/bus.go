package viz

import (
	"encoding/json"

	"github.com/Shopify/sarama"

	"github.com/solbot/core/log"
)

// Event is one classified log line ready to publish.
type Event struct {
	Component Component
	Line      string
	TimeMs    int64
}

// Bus is a thin sarama.AsyncProducer wrapper: WaitForLocal acks, snappy
// compression, and success/error drained on background goroutines
// rather than blocking the publisher.
type Bus struct {
	topic    string
	producer sarama.AsyncProducer
	logger   log.Logger
}

// NewBus dials brokers and starts the success/error drain loops.
func NewBus(brokers []string, topic string) (*Bus, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	b := &Bus{topic: topic, producer: producer, logger: log.NewModuleLogger(log.Viz)}
	go b.drainErrors()
	return b, nil
}

func (b *Bus) drainErrors() {
	for err := range b.producer.Errors() {
		b.logger.Warn("viz event publish failed", "err", err.Err)
	}
}

// Publish classifies line, wraps it in an Event, and enqueues it; never
// blocks the caller on the network round trip, matching the
// asynchronous producer it wraps. A marshal failure is logged and the
// line is dropped rather than sent malformed.
func (b *Bus) Publish(line string, timeMs int64) {
	evt := Event{Component: Classify(line), Line: line, TimeMs: timeMs}
	payload, err := json.Marshal(evt)
	if err != nil {
		b.logger.Warn("viz event marshal failed", "err", err)
		return
	}
	b.producer.Input() <- &sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(evt.Component),
		Value: sarama.ByteEncoder(payload),
	}
}

func (b *Bus) Close() error {
	return b.producer.Close()
}
