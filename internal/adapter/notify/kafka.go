package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/restaurant/internal/core/domain"
)

const DefaultTopic = "order-status"

// KafkaPublisher writes status changes keyed by order ID, so every change of
// one order lands on the same partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// ParseBrokers splits a comma separated broker list, skipping blanks.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func (p *KafkaPublisher) HandleStatusChange(ctx context.Context, c domain.StatusChange) error {
	data, err := json.Marshal(newStatusMessage(c))
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(c.OrderID),
		Value: data,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(c.To)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
