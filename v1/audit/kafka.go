package audit

import (
	"context"
	"encoding/json"
	"fmt"

	sarama "github.com/IBM/sarama"
)

const defaultExportTopic = "resv.audit.records"

// KafkaExporter streams committed audit records to a Kafka topic for
// downstream archival and reconciliation. It implements Sink. Messages are
// keyed by entity so per-entity ordering survives partitioning.
type KafkaExporter struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaExporter creates an exporter connected to the given brokers.
func NewKafkaExporter(brokers []string, cfg *sarama.Config, topic string) (*KafkaExporter, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	if !cfg.Producer.Return.Successes {
		cfg.Producer.Return.Successes = true
	}
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	if topic == "" {
		topic = defaultExportTopic
	}
	return &KafkaExporter{producer: producer, topic: topic}, nil
}

// Publish implements Sink.
func (e *KafkaExporter) Publish(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: e.topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%s:%d", rec.EntityType, rec.EntityID)),
		Value: sarama.ByteEncoder(data),
	}
	_, _, err = e.producer.SendMessage(msg)
	return err
}

// Close releases the producer.
func (e *KafkaExporter) Close() error {
	return e.producer.Close()
}
