package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/logger"
	"github.com/teranos/mend/types"
)

// Tx is one logical unit of work against the engine tables.
type Tx struct {
	tx    *sqlx.Tx
	store *Store
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr(err, "begin transaction")
	}

	if err := fn(&Tx{tx: tx, store: s}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warnw("Rollback failed", logger.FieldError, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr(err, "commit transaction")
	}
	return nil
}

func (t *Tx) nextID(ctx context.Context, query, what string) (int, error) {
	var max int
	if err := t.tx.GetContext(ctx, &max, query); err != nil {
		return 0, storageErr(err, "mint %s id", what)
	}
	return max + 1, nil
}

// NextViolationID returns MAX(vid)+1. Not safe under concurrent writers.
func (t *Tx) NextViolationID(ctx context.Context) (int, error) {
	return t.nextID(ctx, maxViolationIDQuery, "violation")
}

// NextRepairID returns MAX(id)+1 of the repair table.
func (t *Tx) NextRepairID(ctx context.Context) (int, error) {
	return t.nextID(ctx, maxRepairIDQuery, "repair")
}

func persisted(v types.Value) any {
	if v.IsNull() {
		return nil
	}
	return v.String()
}

func batchRows(batch, columns int) int {
	limit := maxBindParams / columns
	if batch <= 0 || batch > limit {
		return limit
	}
	return batch
}

func (t *Tx) insertRows(ctx context.Context, table, columns string, rows [][]any, batch int) error {
	if len(rows) == 0 {
		return nil
	}
	width := len(rows[0])
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"
	step := batchRows(batch, width)

	for start := 0; start < len(rows); start += step {
		end := start + step
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		var sb strings.Builder
		sb.WriteString("INSERT INTO ")
		sb.WriteString(table)
		sb.WriteString(" (")
		sb.WriteString(columns)
		sb.WriteString(") VALUES ")
		args := make([]any, 0, len(chunk)*width)
		for i, row := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(placeholder)
			args = append(args, row...)
		}

		if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(sb.String()), args...); err != nil {
			return errors.WithDetailf(storageErr(err, "insert into %s", table),
				"rows %d-%d of %d", start, end, len(rows))
		}
	}
	return nil
}

// InsertViolations writes one row per violation cell, at most batch rows per statement.
// Violations must already carry their ids.
func (t *Tx) InsertViolations(ctx context.Context, violations []types.Violation, batch int) error {
	var rows [][]any
	for _, v := range violations {
		for _, c := range v.Cells {
			rows = append(rows, []any{v.ID, v.RuleID, c.Table(), c.TID(), c.Attribute(), persisted(c.Value())})
		}
	}
	return t.insertRows(ctx, "violation", violationColumns, rows, batch)
}

// InsertFixes writes fixes to the repair table with ids starting at firstID.
func (t *Tx) InsertFixes(ctx context.Context, fixes []types.Fix, firstID, batch int) error {
	rows := make([][]any, 0, len(fixes))
	for i, f := range fixes {
		row := []any{firstID + i, f.VID, f.Left.TID(), f.Left.Table(), f.Left.Attribute(), persisted(f.Left.Value()), int(f.Op)}
		if f.RightConstant {
			row = append(row, nil, nil, nil, persisted(f.Constant))
		} else {
			row = append(row, f.Right.TID(), f.Right.Table(), f.Right.Attribute(), persisted(f.Right.Value()))
		}
		rows = append(rows, row)
	}
	return t.insertRows(ctx, "repair", repairColumns, rows, batch)
}

// RepairPartners returns the tuple ids paired with cell in repair rows of
// violations touching cell, on cell's attribute. Constant fixes contribute no partner.
func (t *Tx) RepairPartners(ctx context.Context, cell types.Cell) ([]int, error) {
	rows, err := t.tx.QueryContext(ctx, t.tx.Rebind(repairPartnersQuery),
		cell.Attribute(), cell.Attribute(), cell.Table(), cell.TID(), cell.Attribute())
	if err != nil {
		return nil, cellDetail(storageErr(err, "select repair partners"), cell.Table(), cell.Attribute(), cell.TID())
	}
	defer rows.Close()

	seen := make(map[int]struct{})
	var partners []int
	add := func(tid int) {
		if tid == cell.TID() {
			return
		}
		if _, ok := seen[tid]; ok {
			return
		}
		seen[tid] = struct{}{}
		partners = append(partners, tid)
	}
	for rows.Next() {
		var c1 int
		var c2 sql.NullInt64
		if err := rows.Scan(&c1, &c2); err != nil {
			return nil, storageErr(err, "scan repair partners")
		}
		add(c1)
		if c2.Valid {
			add(int(c2.Int64))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "select repair partners")
	}
	return partners, nil
}

// DeleteViolationsTouching removes the repair rows and violation rows of every
// violation that includes cell.
func (t *Tx) DeleteViolationsTouching(ctx context.Context, cell types.Cell) (int64, error) {
	args := []any{cell.Table(), cell.TID(), cell.Attribute()}
	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(deleteRepairsTouchingQuery), args...); err != nil {
		return 0, cellDetail(storageErr(err, "delete repairs"), cell.Table(), cell.Attribute(), cell.TID())
	}
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(deleteViolationsTouchingQuery), args...)
	if err != nil {
		return 0, cellDetail(storageErr(err, "delete violations"), cell.Table(), cell.Attribute(), cell.TID())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr(err, "count deleted violations")
	}
	return n, nil
}

// DeleteRuleViolations removes every violation row reported by rule, with
// its repair rows, and returns the number of violation rows removed.
func (t *Tx) DeleteRuleViolations(ctx context.Context, rule string) (int64, error) {
	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(deleteRuleRepairsQuery), rule); err != nil {
		return 0, errors.WithDetailf(storageErr(err, "delete repairs"), "rule %s", rule)
	}
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(deleteRuleViolationsQuery), rule)
	if err != nil {
		return 0, errors.WithDetailf(storageErr(err, "delete violations"), "rule %s", rule)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr(err, "count deleted violations")
	}
	return n, nil
}

// UpdateCell writes v into the source table at cell's coordinate.
// An update matching no row is a failure.
func (t *Tx) UpdateCell(ctx context.Context, cell types.Cell, v types.Value) error {
	query := t.tx.Rebind("UPDATE " + quote(cell.Table()) + " SET " + quote(cell.Attribute()) + " = ? WHERE tid = ?")
	res, err := t.tx.ExecContext(ctx, query, v.SQL(), cell.TID())
	if err != nil {
		return cellDetail(storageErr(err, "update cell"), cell.Table(), cell.Attribute(), cell.TID())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return cellDetail(storageErr(err, "count updated rows"), cell.Table(), cell.Attribute(), cell.TID())
	}
	if n == 0 {
		return cellDetail(errors.MarkStorage(errors.Wrap(errors.ErrNoRowsUpdated, "update cell")),
			cell.Table(), cell.Attribute(), cell.TID())
	}
	return nil
}

// InsertAudit appends rec with a freshly minted id and the store's clock.
func (t *Tx) InsertAudit(ctx context.Context, rec types.AuditRecord) (types.AuditRecord, error) {
	id, err := t.nextID(ctx, maxAuditIDQuery, "audit")
	if err != nil {
		return types.AuditRecord{}, err
	}
	rec.ID = id
	rec.Time = t.store.now()

	_, err = t.tx.ExecContext(ctx, t.tx.Rebind(insertAuditQuery),
		rec.ID, rec.VID, rec.TID, rec.Table, rec.Attribute, rec.OldValue, rec.NewValue, rec.Time)
	if err != nil {
		return types.AuditRecord{}, cellDetail(storageErr(err, "insert audit"), rec.Table, rec.Attribute, rec.TID)
	}
	return rec, nil
}
