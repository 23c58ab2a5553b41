package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"binScope/internal/model"
)

func TestJsonlJournalAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.jsonl")
	journal := NewJsonlJournal(path)

	first := model.OperationRecord{ID: "a", Operation: model.OpFundOneSide, BinIDs: []int32{120, 130}, Status: model.StatusLanded}
	second := model.OperationRecord{ID: "b", Operation: model.OpClose, Status: model.StatusRejected, Error: "PositionNotEmpty"}

	if err := journal.PutOperationBatch(context.Background(), []model.OperationRecord{first}); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if err := journal.PutOperationBatch(context.Background(), []model.OperationRecord{second}); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if err := journal.PutOperationBatch(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var got []model.OperationRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec model.OperationRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		got = append(got, rec)
	}

	want := []model.OperationRecord{first, second}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("records mismatch: %+v != %+v", got, want)
	}
}

func TestJsonlJournalLastOperation(t *testing.T) {
	journal := NewJsonlJournal(filepath.Join(t.TempDir(), "journal.jsonl"))
	ctx := context.Background()

	if _, ok, err := journal.LastOperation(ctx, "pos-a"); err != nil || ok {
		t.Fatalf("missing journal should report nothing: ok=%v err=%v", ok, err)
	}

	records := []model.OperationRecord{
		{ID: "1", Position: "pos-a", Operation: model.OpFundOneSide, ToState: "open", Status: model.StatusLanded},
		{ID: "2", Position: "pos-b", Operation: model.OpClose, ToState: "closed", Status: model.StatusLanded},
		{ID: "3", Position: "pos-a", Operation: model.OpRemoveAll, ToState: "empty", Status: model.StatusLanded},
	}
	if err := journal.PutOperationBatch(ctx, records); err != nil {
		t.Fatalf("put: %v", err)
	}

	rec, ok, err := journal.LastOperation(ctx, "pos-a")
	if err != nil || !ok {
		t.Fatalf("last operation: ok=%v err=%v", ok, err)
	}
	if rec.ID != "3" || rec.ToState != "empty" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if _, ok, _ := journal.LastOperation(ctx, "pos-c"); ok {
		t.Fatalf("unknown position should report nothing")
	}
	if _, _, err := journal.LastOperation(ctx, ""); err == nil {
		t.Fatalf("expected error for empty position")
	}
}
