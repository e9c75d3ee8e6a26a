// Package events publishes settled sales to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"

	"nexuspos/backend/internal/domain"
)

const DefaultTopic = "pos.sales"

type Publisher interface {
	PublishSale(ctx context.Context, tx domain.Transaction) error
	Close() error
}

// SaleEvent is the wire form of a settled sale.
type SaleEvent struct {
	Type          string            `json:"type"`
	TransactionID string            `json:"transaction_id"`
	SaleType      string            `json:"sale_type"`
	OwnerID       string            `json:"owner_id"`
	TotalCents    int64             `json:"total_cents"`
	TaxCents      int64             `json:"tax_cents"`
	PaymentMethod string            `json:"payment_method"`
	Items         []domain.LineItem `json:"items"`
	SettledAt     time.Time         `json:"settled_at"`
}

func NewSaleEvent(tx domain.Transaction) SaleEvent {
	return SaleEvent{
		Type:          "sale.settled",
		TransactionID: tx.ID,
		SaleType:      string(tx.Type),
		OwnerID:       tx.OwnerID,
		TotalCents:    tx.TotalCents,
		TaxCents:      tx.TaxCents,
		PaymentMethod: string(tx.PaymentMethod),
		Items:         domain.CloneLines(tx.Items),
		SettledAt:     tx.Date.UTC(),
	}
}

type Noop struct{}

func (Noop) PublishSale(_ context.Context, _ domain.Transaction) error { return nil }
func (Noop) Close() error { return nil }

type KafkaPublisher struct {
	writer *kafkaGo.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{
		writer: &kafkaGo.Writer{
			Addr:         kafkaGo.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkaGo.LeastBytes{},
			BatchSize:    1,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// PublishSale keys messages by owner so one till's sales stay ordered within
// a partition. Each sale is its own batch, so a checkout does not wait for
// the writer's batch timer.
func (k *KafkaPublisher) PublishSale(ctx context.Context, tx domain.Transaction) error {
	payload, err := json.Marshal(NewSaleEvent(tx))
	if err != nil {
		return fmt.Errorf("failed to marshal sale event: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafkaGo.Message{
		Key:   []byte(tx.OwnerID),
		Value: payload,
	})
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

// Recorder keeps published sales in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []SaleEvent
	Err    error
}

func (r *Recorder) PublishSale(_ context.Context, tx domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Events = append(r.Events, NewSaleEvent(tx))
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Published() []SaleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SaleEvent(nil), r.Events...)
}
