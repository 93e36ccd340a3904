package producer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"

	"github.com/Martaccvlc/ImageResizingAPI/internal/config"
)

// taskMessage is the wire payload handed to the processing side.
type taskMessage struct {
	TaskID uuid.UUID `json:"task_id"`
}

// Producer represents a Kafka producer for created-task events.
type Producer struct {
	Client   *wbfkafka.Producer
	strategy retry.Strategy
	cfg      *config.Kafka
}

// New creates a new Producer.
// - cfg: Kafka configuration struct
// - s: retry strategy
func New(cfg *config.Kafka, s retry.Strategy) *Producer {
	producer := wbfkafka.NewProducer(cfg.Brokers, cfg.Topic)

	return &Producer{
		Client:   producer,
		cfg:      cfg,
		strategy: s,
	}
}

// Enqueue publishes the task id for asynchronous processing. The id doubles
// as the message key for partitioning and ordering.
func (p *Producer) Enqueue(ctx context.Context, taskID uuid.UUID) error {
	data, err := json.Marshal(taskMessage{TaskID: taskID})
	if err != nil {
		return fmt.Errorf("failed to marshal task message: %v", err)
	}

	key := []byte(taskID.String())

	if err = p.Client.SendWithRetry(ctx, p.strategy, key, data); err != nil {
		return fmt.Errorf("failed to send task message: %v", err)
	}

	return nil
}
