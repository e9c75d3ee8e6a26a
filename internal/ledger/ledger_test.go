package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"nexuspos/backend/internal/cache"
	"nexuspos/backend/internal/domain"
	"nexuspos/backend/internal/store/memory"
)

func sale(id string, txType domain.TransactionType, at time.Time) domain.Transaction {
	return domain.Transaction{
		ID:      id,
		Type:    txType,
		OwnerID: "owner-1",
		Items:   []domain.LineItem{domain.NewServiceLine(domain.Service{ID: "s1"}, 1000)},
		Date:    at,
	}
}

func TestAppendPrependsAndMirrors(t *testing.T) {
	ctx := context.Background()
	local := cache.NewMemoryStore()
	l := New(memory.New(), local, nil)
	now := time.Now().UTC()

	_ = l.Append(ctx, sale("TRX-000001", domain.TxTypeProduct, now))
	_ = l.Append(ctx, sale("TRX-000002", domain.TxTypeProduct, now.Add(time.Second)))
	_ = l.Append(ctx, sale("SRV-000001", domain.TxTypeService, now))

	txs := l.Transactions()
	if len(txs) != 2 || txs[0].ID != "TRX-000002" {
		t.Fatalf("expected newest first, got %+v", txs)
	}
	if got := l.ServiceTransactions(); len(got) != 1 || got[0].ID != "SRV-000001" {
		t.Fatalf("expected service history apart, got %+v", got)
	}

	var cached []domain.Transaction
	ok, err := cache.GetJSON(ctx, local, cache.OwnerKey(cache.KeyTransactions, "owner-1"), &cached)
	if err != nil || !ok || len(cached) != 2 {
		t.Fatalf("expected product history in cache, got %+v ok=%v err=%v", cached, ok, err)
	}
}

func TestLoadPrefersRemoteThenCache(t *testing.T) {
	ctx := context.Background()
	remote := memory.New()
	local := cache.NewMemoryStore()
	now := time.Now().UTC()

	_, _ = remote.InsertTransaction(ctx, "owner-1", sale("TRX-000010", domain.TxTypeProduct, now))

	l := New(remote, local, nil)
	if err := l.Load(ctx, "owner-1", true); err != nil {
		t.Fatalf("online load: %v", err)
	}
	if len(l.Transactions()) != 1 {
		t.Fatalf("expected remote history")
	}

	remote.FailWith(errors.New("down"))
	fallback := New(remote, local, nil)
	if err := fallback.Load(ctx, "owner-1", true); err != nil {
		t.Fatalf("fallback load: %v", err)
	}
	if got := fallback.Transactions(); len(got) != 1 || got[0].ID != "TRX-000010" {
		t.Fatalf("expected cached history after remote failure, got %+v", got)
	}

	if err := fallback.Load(ctx, "", false); err != nil {
		t.Fatalf("anonymous load: %v", err)
	}
	if len(fallback.Transactions()) != 0 {
		t.Fatalf("expected empty history without identity")
	}
}

func TestTransactionsReturnsCopies(t *testing.T) {
	l := New(memory.New(), cache.NewMemoryStore(), nil)
	_ = l.Append(context.Background(), sale("TRX-000001", domain.TxTypeProduct, time.Now()))

	txs := l.Transactions()
	txs[0].Items[0].AmountChargedCents = 1

	if l.Transactions()[0].Items[0].AmountChargedCents != 1000 {
		t.Fatalf("expected ledger copy to be immutable from callers")
	}
}

type pendingSales []domain.SyncQueueEntry

func (p pendingSales) Pending(context.Context) ([]domain.SyncQueueEntry, error) {
	return p, nil
}

func TestLoadKeepsSalesStillQueued(t *testing.T) {
	ctx := context.Background()
	remote := memory.New()
	local := cache.NewMemoryStore()
	now := time.Now().UTC()

	_, _ = remote.InsertTransaction(ctx, "owner-1", sale("TRX-000010", domain.TxTypeProduct, now.Add(-time.Hour)))
	queued := sale("TRX-000011", domain.TxTypeProduct, now)
	strangers := sale("TRX-000099", domain.TxTypeProduct, now)
	strangers.OwnerID = "owner-2"

	l := New(remote, local, nil)
	l.UseOutbox(pendingSales{
		{Kind: domain.SyncKindTransaction, OwnerID: "owner-1", Payload: queued},
		{Kind: domain.SyncKindTransaction, OwnerID: "owner-1", Payload: sale("TRX-000010", domain.TxTypeProduct, now.Add(-time.Hour))},
		{Kind: domain.SyncKindTransaction, OwnerID: "owner-2", Payload: strangers},
	})
	if err := l.Load(ctx, "owner-1", true); err != nil {
		t.Fatalf("online load: %v", err)
	}

	txs := l.Transactions()
	if len(txs) != 2 || txs[0].ID != "TRX-000011" || txs[1].ID != "TRX-000010" {
		t.Fatalf("expected queued sale merged newest first without duplicates, got %+v", txs)
	}

	var cached []domain.Transaction
	if _, err := cache.GetJSON(ctx, local, cache.OwnerKey(cache.KeyTransactions, "owner-1"), &cached); err != nil || len(cached) != 2 {
		t.Fatalf("expected merged history mirrored to cache, got %+v err=%v", cached, err)
	}
}
