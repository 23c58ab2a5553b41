package storage

import (
	"context"

	"binScope/internal/model"
)

// Journal is a sink for operation records.
type Journal interface {
	PutOperationBatch(ctx context.Context, records []model.OperationRecord) error
}

// History looks up journaled operations of a position.
type History interface {
	LastOperation(ctx context.Context, position string) (model.OperationRecord, bool, error)
}

// Discard drops every record.
type Discard struct{}

func (Discard) PutOperationBatch(context.Context, []model.OperationRecord) error {
	return nil
}

func (Discard) LastOperation(context.Context, string) (model.OperationRecord, bool, error) {
	return model.OperationRecord{}, false, nil
}
