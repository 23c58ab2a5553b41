package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"binScope/internal/model"
)

// Set BINSCOPE_TEST_PG_DSN to run against a scratch database.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("BINSCOPE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("BINSCOPE_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	// applying twice is harmless
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema again: %v", err)
	}
	return store
}

func TestNewStoreRequiresDSN(t *testing.T) {
	if _, err := NewStore(context.Background(), ""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLastOperationReturnsNewest(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	position := "pos-" + uuid.NewString()
	base := time.Now().UTC()

	older := model.OperationRecord{
		ID: uuid.NewString(), Operation: model.OpFundOneSide, Position: position, LbPair: "pair", Owner: "owner",
		Side: "X", Amount: 1000, BinIDs: []int32{120, 130}, LowerShard: 1, UpperShard: 1,
		FromState: "open", ToState: "open", Status: model.StatusLanded,
		CreatedAt: base.Format(time.RFC3339Nano),
	}
	newer := model.OperationRecord{
		ID: uuid.NewString(), Operation: model.OpRemoveAll, Position: position, LbPair: "pair", Owner: "owner",
		LowerShard: 1, UpperShard: 1, FromState: "open", ToState: "empty", Status: model.StatusDryRun,
		CreatedAt: base.Add(time.Second).Format(time.RFC3339Nano),
	}
	if err := store.PutOperationBatch(ctx, []model.OperationRecord{older, newer}); err != nil {
		t.Fatalf("put: %v", err)
	}

	// upsert on id updates the outcome columns
	newer.Status = model.StatusLanded
	newer.Signature = "sig"
	if err := store.PutOperationBatch(ctx, []model.OperationRecord{newer}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, ok, err := store.LastOperation(ctx, position)
	if err != nil || !ok {
		t.Fatalf("last operation: ok=%v err=%v", ok, err)
	}
	if got.ID != newer.ID || got.Status != model.StatusLanded || got.Signature != "sig" || got.ToState != "empty" {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, ok, err := store.LastOperation(ctx, "pos-"+uuid.NewString()); err != nil || ok {
		t.Fatalf("unknown position: ok=%v err=%v", ok, err)
	}
}

func TestSchemaEmbedded(t *testing.T) {
	for _, want := range []string{"CREATE TABLE IF NOT EXISTS position_operations", "position_operations_position_idx"} {
		if !strings.Contains(schema, want) {
			t.Fatalf("schema missing %q", want)
		}
	}
}
