package consistency

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/logger"
	"github.com/teranos/mend/store"
	"github.com/teranos/mend/types"
)

// AuditManager applies fixes to the source data and records each one.
// The set of changed cells lives as long as the AuditManager.
type AuditManager struct {
	store  *store.Store
	logger *zap.SugaredLogger

	mu      sync.Mutex
	changed map[types.CellKey]struct{}
}

// NewAuditManager creates an AuditManager with an empty changed-cell set.
func NewAuditManager(st *store.Store, log *zap.SugaredLogger) *AuditManager {
	return &AuditManager{
		store:   st,
		logger:  log.Named("audit"),
		changed: make(map[types.CellKey]struct{}),
	}
}

// ApplyFix writes fix's constant into the cell on its left side and appends an
// audit record in the same transaction. Returns the updated cell.
func (a *AuditManager) ApplyFix(ctx context.Context, fix types.Fix) (types.Cell, types.AuditRecord, error) {
	if !fix.RightConstant {
		return types.Cell{}, types.AuditRecord{}, errors.NewInvalidInputError("apply fix %s: right side is not a constant", fix)
	}
	cell := fix.Left
	value := fix.Constant

	var rec types.AuditRecord
	err := a.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.UpdateCell(ctx, cell, value); err != nil {
			return err
		}
		var err error
		rec, err = tx.InsertAudit(ctx, types.AuditRecord{
			VID:       fix.VID,
			TID:       cell.TID(),
			Table:     cell.Table(),
			Attribute: cell.Attribute(),
			OldValue:  cell.Value().String(),
			NewValue:  value.String(),
		})
		return err
	})
	if err != nil {
		return types.Cell{}, types.AuditRecord{}, errors.Wrap(err, "apply fix")
	}

	a.mu.Lock()
	a.changed[cell.Key()] = struct{}{}
	a.mu.Unlock()

	a.logger.Infow("Applied fix",
		append(logger.CellFields(cell.Table(), cell.Attribute(), cell.TID()),
			logger.FieldViolationID, fix.VID,
			logger.FieldOldValue, rec.OldValue,
			logger.FieldNewValue, rec.NewValue)...)
	return cell.WithValue(value), rec, nil
}

// IsAlreadyUpdated reports whether a fix was applied to cell's coordinate.
func (a *AuditManager) IsAlreadyUpdated(cell types.Cell) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.changed[cell.Key()]
	return ok
}

// Changed returns the number of cells updated so far.
func (a *AuditManager) Changed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.changed)
}
