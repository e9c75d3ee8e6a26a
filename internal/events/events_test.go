package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"nexuspos/backend/internal/domain"
)

func TestSaleEventPayload(t *testing.T) {
	tx := domain.Transaction{
		ID:            "TRX-123456",
		Type:          domain.TxTypeProduct,
		OwnerID:       "owner-1",
		Items:         []domain.LineItem{domain.NewProductLine(domain.Product{ID: "p1", PriceCents: 1000}, 2)},
		TotalCents:    2000,
		PaymentMethod: domain.PaymentCard,
		Date:          time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(NewSaleEvent(tx))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "sale.settled" || decoded["transaction_id"] != "TRX-123456" || decoded["payment_method"] != "card" {
		t.Fatalf("unexpected payload %s", raw)
	}
}

func TestRecorderAndNoop(t *testing.T) {
	ctx := context.Background()
	var p Publisher = &Recorder{}
	if err := p.PublishSale(ctx, domain.Transaction{ID: "SRV-000001", Type: domain.TxTypeService}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := p.(*Recorder).Published(); len(got) != 1 || got[0].SaleType != "service" {
		t.Fatalf("unexpected recorded events %+v", got)
	}

	if err := (Noop{}).PublishSale(ctx, domain.Transaction{}); err != nil {
		t.Fatalf("noop publish: %v", err)
	}
}

func TestNewKafkaPublisherDefaultsTopic(t *testing.T) {
	k := NewKafkaPublisher([]string{"localhost:9092"}, "")
	defer k.Close()
	if k.writer.Topic != DefaultTopic {
		t.Fatalf("expected default topic, got %s", k.writer.Topic)
	}
	if k.writer.BatchSize != 1 || k.writer.BatchTimeout > 10*time.Millisecond {
		t.Fatalf("expected unbatched writes, got size=%d timeout=%s", k.writer.BatchSize, k.writer.BatchTimeout)
	}
}
