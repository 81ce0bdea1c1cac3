// Package store is the storage layer of the repair engine. It reads source
// tuples and persists the violation, repair and audit tables over any
// database/sql driver supported by sqlx.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/types"
)

// Store provides point queries over source tables and persistence for
// the violation, repair and audit tables.
type Store struct {
	db     *sqlx.DB
	logger *zap.SugaredLogger
	now    func() time.Time

	mu      sync.Mutex
	schemas map[string]types.Schema
	domains map[types.Column][]string
}

// New creates a store over db.
func New(db *sqlx.DB, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{
		db:      db,
		logger:  logger.Named("store"),
		now:     func() time.Time { return time.Now().UTC() },
		schemas: make(map[string]types.Schema),
		domains: make(map[types.Column][]string),
	}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// SetClock replaces the audit timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func storageErr(err error, format string, args ...interface{}) error {
	return errors.MarkStorage(errors.Wrapf(err, format, args...))
}

func cellDetail(err error, table, attribute string, tid int) error {
	return errors.WithDetailf(err, "cell %s.%s[%d]", table, attribute, tid)
}

// Schema returns the columns of table, excluding tid. Results are cached.
func (s *Store) Schema(ctx context.Context, table string) (types.Schema, error) {
	if err := types.ValidIdentifier("table", table); err != nil {
		return types.Schema{}, err
	}

	s.mu.Lock()
	cached, ok := s.schemas[table]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quote(table)+" WHERE 1 = 0")
	if err != nil {
		return types.Schema{}, storageErr(err, "get schema of %s", table)
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return types.Schema{}, storageErr(err, "read column types of %s", table)
	}

	schema := types.Schema{Table: table}
	hasTID := false
	for _, ct := range columnTypes {
		if strings.EqualFold(ct.Name(), types.TIDColumn) {
			hasTID = true
			continue
		}
		schema.Columns = append(schema.Columns, types.ColumnInfo{
			Name: ct.Name(),
			Type: types.DataTypeOf(ct.DatabaseTypeName()),
		})
	}
	if !hasTID {
		return types.Schema{}, errors.WithHint(
			errors.Newf("table %s has no %s column", table, types.TIDColumn),
			"source tables identify tuples by an integer tid column")
	}

	s.mu.Lock()
	s.schemas[table] = schema
	s.mu.Unlock()
	return schema, nil
}

func selectList(schema types.Schema) string {
	cols := make([]string, 0, len(schema.Columns)+1)
	cols = append(cols, types.TIDColumn)
	for _, c := range schema.Columns {
		cols = append(cols, quote(c.Name))
	}
	return strings.Join(cols, ", ")
}

func scanTuple(rows *sql.Rows, schema types.Schema) (types.Tuple, error) {
	raw := make([]any, len(schema.Columns)+1)
	ptrs := make([]any, len(raw))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return types.Tuple{}, err
	}

	tidValue, err := types.FromDB(raw[0], types.TypeInteger)
	if err != nil {
		return types.Tuple{}, err
	}
	tid, _ := tidValue.AsInt()

	values := make([]types.Value, len(schema.Columns))
	for i, c := range schema.Columns {
		v, err := types.FromDB(raw[i+1], c.Type)
		if err != nil {
			return types.Tuple{}, errors.Wrapf(err, "column %s", c.Name)
		}
		values[i] = v
	}
	return types.NewTuple(schema, int(tid), values)
}

// Tuple loads one tuple by id.
func (s *Store) Tuple(ctx context.Context, table string, tid int) (types.Tuple, error) {
	schema, err := s.Schema(ctx, table)
	if err != nil {
		return types.Tuple{}, err
	}

	query := s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE tid = ?", selectList(schema), quote(table)))
	rows, err := s.db.QueryContext(ctx, query, tid)
	if err != nil {
		return types.Tuple{}, storageErr(err, "select tuple %d from %s", tid, table)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return types.Tuple{}, storageErr(err, "select tuple %d from %s", tid, table)
		}
		return types.Tuple{}, errors.NewNotFoundError("tuple %d in %s", tid, table)
	}
	tuple, err := scanTuple(rows, schema)
	if err != nil {
		return types.Tuple{}, storageErr(err, "scan tuple %d from %s", tid, table)
	}
	return tuple, nil
}

// Cell loads the current value of one cell.
func (s *Store) Cell(ctx context.Context, table string, tid int, attribute string) (types.Cell, error) {
	col, err := types.NewColumn(table, attribute)
	if err != nil {
		return types.Cell{}, err
	}
	schema, err := s.Schema(ctx, table)
	if err != nil {
		return types.Cell{}, err
	}
	info, ok := schema.Lookup(attribute)
	if !ok {
		return types.Cell{}, errors.NewNotFoundError("attribute %s in %s", attribute, table)
	}

	query := s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE tid = ?", quote(attribute), quote(table)))
	var raw any
	if err := s.db.QueryRowContext(ctx, query, tid).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Cell{}, errors.NewNotFoundError("cell %s.%s[%d]", table, attribute, tid)
		}
		return types.Cell{}, cellDetail(storageErr(err, "select cell"), table, attribute, tid)
	}
	v, err := types.FromDB(raw, info.Type)
	if err != nil {
		return types.Cell{}, cellDetail(err, table, attribute, tid)
	}
	return types.NewCell(col, tid, v)
}

// LoadTable reads every tuple of table ordered by tid.
func (s *Store) LoadTable(ctx context.Context, table string) (*types.Table, error) {
	schema, err := s.Schema(ctx, table)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY tid", selectList(schema), quote(table)))
	if err != nil {
		return nil, storageErr(err, "load table %s", table)
	}
	defer rows.Close()

	result := &types.Table{Schema: schema}
	for rows.Next() {
		tuple, err := scanTuple(rows, schema)
		if err != nil {
			return nil, storageErr(err, "scan table %s", table)
		}
		result.Tuples = append(result.Tuples, tuple)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "load table %s", table)
	}
	return result, nil
}

// DistinctValues returns the domain of table.attribute in order of first appearance.
// Domains are cached for the lifetime of the store; reference tables do not change.
func (s *Store) DistinctValues(ctx context.Context, table, attribute string) ([]string, error) {
	col, err := types.NewColumn(table, attribute)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	cached, ok := s.domains[col]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL GROUP BY %s ORDER BY MIN(tid)",
		quote(attribute), quote(table), quote(attribute), quote(attribute))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr(err, "select domain of %s", col)
	}
	defer rows.Close()

	var domain []string
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, storageErr(err, "scan domain of %s", col)
		}
		v, err := types.FromDB(raw, types.TypeText)
		if err != nil {
			return nil, errors.Wrapf(err, "domain of %s", col)
		}
		domain = append(domain, v.String())
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "select domain of %s", col)
	}

	s.mu.Lock()
	s.domains[col] = domain
	s.mu.Unlock()
	return domain, nil
}

// ViolatedColumns returns every column with at least one open violation.
func (s *Store) ViolatedColumns(ctx context.Context) ([]types.Column, error) {
	var rows []struct {
		Table     string `db:"tablename"`
		Attribute string `db:"attribute"`
	}
	if err := s.db.SelectContext(ctx, &rows, violatedColumnsQuery); err != nil {
		return nil, storageErr(err, "select violated attributes")
	}

	columns := make([]types.Column, 0, len(rows))
	for _, r := range rows {
		col, err := types.NewColumn(r.Table, r.Attribute)
		if err != nil {
			return nil, errors.Wrap(err, "violation table holds an invalid column")
		}
		columns = append(columns, col)
	}
	return columns, nil
}

// ViolatedTuples returns the ids of tuples with open violations on col.
func (s *Store) ViolatedTuples(ctx context.Context, col types.Column) ([]int, error) {
	var tids []int
	if err := s.db.SelectContext(ctx, &tids, s.db.Rebind(violatedTuplesQuery), col.Table, col.Attribute); err != nil {
		return nil, storageErr(err, "select violated tuples of %s", col)
	}
	return tids, nil
}

type repairRow struct {
	ID          int            `db:"id"`
	VID         int            `db:"vid"`
	C1TupleID   int            `db:"c1_tupleid"`
	C1Table     string         `db:"c1_tablename"`
	C1Attribute string         `db:"c1_attribute"`
	C1Value     sql.NullString `db:"c1_value"`
	Op          int            `db:"op"`
	C2TupleID   sql.NullInt64  `db:"c2_tupleid"`
	C2Table     sql.NullString `db:"c2_tablename"`
	C2Attribute sql.NullString `db:"c2_attribute"`
	C2Value     sql.NullString `db:"c2_value"`
}

// FixesOfCell returns every persisted fix with cell on either side, ordered by id.
// Values are the ones recorded at detection time.
func (s *Store) FixesOfCell(ctx context.Context, cell types.Cell) ([]types.Fix, error) {
	var rows []repairRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(fixesOfCellQuery),
		cell.Table(), cell.Attribute(), cell.TID(),
		cell.Table(), cell.Attribute(), cell.TID())
	if err != nil {
		return nil, cellDetail(storageErr(err, "select fixes"), cell.Table(), cell.Attribute(), cell.TID())
	}

	fixes := make([]types.Fix, 0, len(rows))
	for _, r := range rows {
		fix, err := s.fixFromRow(ctx, r)
		if err != nil {
			return nil, errors.Wrapf(err, "decode repair row %d", r.ID)
		}
		fixes = append(fixes, fix)
	}
	return fixes, nil
}

func (s *Store) persistedCell(ctx context.Context, table, attribute string, tid int, raw sql.NullString) (types.Cell, error) {
	col, err := types.NewColumn(table, attribute)
	if err != nil {
		return types.Cell{}, err
	}
	v, err := s.persistedValue(ctx, col, raw)
	if err != nil {
		return types.Cell{}, err
	}
	return types.NewCell(col, tid, v)
}

func (s *Store) persistedValue(ctx context.Context, col types.Column, raw sql.NullString) (types.Value, error) {
	if !raw.Valid {
		return types.Null(), nil
	}
	schema, err := s.Schema(ctx, col.Table)
	if err != nil {
		return types.Value{}, err
	}
	info, ok := schema.Lookup(col.Attribute)
	if !ok {
		return types.Value{}, errors.NewNotFoundError("attribute %s", col)
	}
	return types.ParseValue(raw.String, info.Type)
}

// persistedConstant is persistedValue for the right side of a constant fix,
// which may be fractional on an integer column.
func (s *Store) persistedConstant(ctx context.Context, col types.Column, raw sql.NullString) (types.Value, error) {
	if !raw.Valid {
		return types.Null(), nil
	}
	schema, err := s.Schema(ctx, col.Table)
	if err != nil {
		return types.Value{}, err
	}
	info, ok := schema.Lookup(col.Attribute)
	if !ok {
		return types.Value{}, errors.NewNotFoundError("attribute %s", col)
	}
	return types.ParseConstant(raw.String, info.Type)
}

func (s *Store) fixFromRow(ctx context.Context, r repairRow) (types.Fix, error) {
	op, err := types.OperationFromCode(r.Op)
	if err != nil {
		return types.Fix{}, err
	}
	left, err := s.persistedCell(ctx, r.C1Table, r.C1Attribute, r.C1TupleID, r.C1Value)
	if err != nil {
		return types.Fix{}, err
	}
	if !r.C2TupleID.Valid {
		constant, err := s.persistedConstant(ctx, left.Column(), r.C2Value)
		if err != nil {
			return types.Fix{}, err
		}
		return types.NewConstantFix(r.VID, left, op, constant), nil
	}
	right, err := s.persistedCell(ctx, r.C2Table.String, r.C2Attribute.String, int(r.C2TupleID.Int64), r.C2Value)
	if err != nil {
		return types.Fix{}, err
	}
	return types.NewCellFix(r.VID, left, op, right), nil
}

// ViolationRow is one persisted violation cell.
type ViolationRow struct {
	VID       int            `db:"vid"`
	RuleID    string         `db:"rid"`
	Table     string         `db:"tablename"`
	TupleID   int            `db:"tupleid"`
	Attribute string         `db:"attribute"`
	Value     sql.NullString `db:"value"`
}

// ViolationRows returns every persisted violation cell ordered by vid.
func (s *Store) ViolationRows(ctx context.Context) ([]ViolationRow, error) {
	var rows []ViolationRow
	if err := s.db.SelectContext(ctx, &rows, violationRowsQuery); err != nil {
		return nil, storageErr(err, "select violations")
	}
	return rows, nil
}

// AuditLog returns every audit record ordered by id.
func (s *Store) AuditLog(ctx context.Context) ([]types.AuditRecord, error) {
	var rows []struct {
		ID        int            `db:"id"`
		VID       int            `db:"vid"`
		TupleID   int            `db:"tupleid"`
		Table     string         `db:"tablename"`
		Attribute string         `db:"attribute"`
		OldValue  sql.NullString `db:"oldvalue"`
		NewValue  sql.NullString `db:"newvalue"`
		Time      time.Time      `db:"time"`
	}
	if err := s.db.SelectContext(ctx, &rows, auditLogQuery); err != nil {
		return nil, storageErr(err, "select audit log")
	}

	records := make([]types.AuditRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, types.AuditRecord{
			ID:        r.ID,
			VID:       r.VID,
			TID:       r.TupleID,
			Table:     r.Table,
			Attribute: r.Attribute,
			OldValue:  r.OldValue.String,
			NewValue:  r.NewValue.String,
			Time:      r.Time,
		})
	}
	return records, nil
}

// Stats summarizes the engine tables.
type Stats struct {
	Violations      int `json:"violations"`
	ViolationCells  int `json:"violation_cells"`
	Repairs         int `json:"repairs"`
	AuditRecords    int `json:"audit_records"`
	ViolatedColumns int `json:"violated_columns"`
}

// Stats counts rows of the violation, repair and audit tables.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, statsQuery).Scan(
		&st.Violations, &st.ViolationCells, &st.Repairs, &st.AuditRecords, &st.ViolatedColumns)
	if err != nil {
		return Stats{}, storageErr(err, "query stats")
	}
	return st, nil
}
