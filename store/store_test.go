package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/mend/db"
	"github.com/teranos/mend/errors"
	mendtest "github.com/teranos/mend/internal/testing"
	"github.com/teranos/mend/types"
)

func newHospitalStore(t *testing.T) *Store {
	t.Helper()
	database := mendtest.CreateTestDB(t)
	mendtest.CreateHospital(t, database)
	return New(database, zaptest.NewLogger(t).Sugar())
}

func cellOf(t *testing.T, table, attr string, tid int, v types.Value) types.Cell {
	t.Helper()
	col, err := types.NewColumn(table, attr)
	require.NoError(t, err)
	c, err := types.NewCell(col, tid, v)
	require.NoError(t, err)
	return c
}

func TestSchema(t *testing.T) {
	s := newHospitalStore(t)
	ctx := context.Background()

	schema, err := s.Schema(ctx, "hospital_noise")
	require.NoError(t, err)

	assert.Equal(t, "hospital_noise", schema.Table)
	require.Len(t, schema.Columns, 4, "tid must be excluded")
	assert.Equal(t, types.ColumnInfo{Name: "zipcode", Type: types.TypeText}, schema.Columns[0])
	assert.Equal(t, types.ColumnInfo{Name: "city", Type: types.TypeText}, schema.Columns[1])
	assert.Equal(t, types.ColumnInfo{Name: "beds", Type: types.TypeInteger}, schema.Columns[2])
	assert.Equal(t, types.ColumnInfo{Name: "rating", Type: types.TypeFloat}, schema.Columns[3])
}

func TestSchema_Errors(t *testing.T) {
	s := newHospitalStore(t)
	ctx := context.Background()

	_, err := s.Schema(ctx, "no such")
	assert.True(t, errors.IsInvalidInputError(err))

	_, err = s.Schema(ctx, "missing_table")
	assert.True(t, errors.IsStorageError(err))

	_, err = s.DB().Exec("CREATE TABLE no_tid (a TEXT)")
	require.NoError(t, err)
	_, err = s.Schema(ctx, "no_tid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tid column")
}

func TestTupleAndCell(t *testing.T) {
	s := newHospitalStore(t)
	ctx := context.Background()

	tuple, err := s.Tuple(ctx, "hospital_noise", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, tuple.TID())

	city, ok := tuple.Value("city")
	require.True(t, ok)
	assert.Equal(t, types.Text("Chicgo"), city)

	beds, ok := tuple.Value("beds")
	require.True(t, ok)
	assert.Equal(t, types.Int(80), beds)

	rating, ok := tuple.Value("rating")
	require.True(t, ok)
	assert.Equal(t, types.Float(3.5), rating)

	cell, err := s.Cell(ctx, "hospital_noise", 3, "city")
	require.NoError(t, err)
	assert.Equal(t, types.Text("New York"), cell.Value())
	assert.Equal(t, types.CellKey{Table: "hospital_noise", Attribute: "city", TID: 3}, cell.Key())

	_, err = s.Tuple(ctx, "hospital_noise", 42)
	assert.True(t, errors.IsNotFoundError(err))

	_, err = s.Cell(ctx, "hospital_noise", 42, "city")
	assert.True(t, errors.IsNotFoundError(err))

	_, err = s.Cell(ctx, "hospital_noise", 1, "unknown")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestLoadTableAndDomain(t *testing.T) {
	s := newHospitalStore(t)
	ctx := context.Background()

	table, err := s.LoadTable(ctx, "hospital_noise")
	require.NoError(t, err)
	require.Len(t, table.Tuples, 3)
	for i, tu := range table.Tuples {
		assert.Equal(t, i+1, tu.TID())
	}

	domain, err := s.DistinctValues(ctx, "hospital_noise", "city")
	require.NoError(t, err)
	assert.Equal(t, []string{"Chicago", "Chicgo", "New York"}, domain)

	domain, err = s.DistinctValues(ctx, "hospital_clean", "city")
	require.NoError(t, err)
	assert.Equal(t, []string{"Chicago", "New York"}, domain)
}

func seedViolation(t *testing.T, s *Store) (types.Cell, types.Cell) {
	t.Helper()
	ctx := context.Background()

	c1 := cellOf(t, "hospital_noise", "city", 1, types.Text("Chicago"))
	c2 := cellOf(t, "hospital_noise", "city", 2, types.Text("Chicgo"))
	z1 := cellOf(t, "hospital_noise", "zipcode", 1, types.Text("60611"))
	z2 := cellOf(t, "hospital_noise", "zipcode", 2, types.Text("60611"))

	err := s.WithTx(ctx, func(tx *Tx) error {
		vid, err := tx.NextViolationID(ctx)
		if err != nil {
			return err
		}
		v := types.Violation{ID: vid, RuleID: "fd1", Cells: []types.Cell{z1, c1, z2, c2}}
		if err := tx.InsertViolations(ctx, []types.Violation{v}, 2); err != nil {
			return err
		}
		rid, err := tx.NextRepairID(ctx)
		if err != nil {
			return err
		}
		return tx.InsertFixes(ctx, []types.Fix{types.NewCellFix(vid, c1, types.EQ, c2)}, rid, 0)
	})
	require.NoError(t, err)
	return c1, c2
}

func TestViolationPersistence(t *testing.T) {
	s := newHospitalStore(t)
	ctx := context.Background()
	c1, c2 := seedViolation(t, s)

	columns, err := s.ViolatedColumns(ctx)
	require.NoError(t, err)
	require.Len(t, columns, 2)
	assert.Equal(t, "city", columns[0].Attribute)
	assert.Equal(t, "zipcode", columns[1].Attribute)

	tids, err := s.ViolatedTuples(ctx, columns[0])
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, tids)

	fixes, err := s.FixesOfCell(ctx, c2)
	require.NoError(t, err)
	require.Len(t, fixes, 1)
	assert.Equal(t, 1, fixes[0].VID)
	assert.Equal(t, types.EQ, fixes[0].Op)
	assert.False(t, fixes[0].RightConstant)
	assert.Equal(t, c1.Key(), fixes[0].Left.Key())
	assert.Equal(t, c2.Key(), fixes[0].Right.Key())
	assert.Equal(t, types.Text("Chicgo"), fixes[0].Right.Value())

	rows, err := s.ViolationRows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Violations: 1, ViolationCells: 4, Repairs: 1, ViolatedColumns: 2}, stats)
}

func TestConstantFixRoundTrip(t *testing.T) {
	s := newHospitalStore(t)
	ctx := context.Background()

	beds := cellOf(t, "hospital_noise", "beds", 2, types.Int(80))
	err := s.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertFixes(ctx, []types.Fix{types.NewConstantFix(7, beds, types.GTE, types.Int(100))}, 1, 0)
	})
	require.NoError(t, err)

	fixes, err := s.FixesOfCell(ctx, beds)
	require.NoError(t, err)
	require.Len(t, fixes, 1)
	assert.True(t, fixes[0].RightConstant)
	assert.Equal(t, types.GTE, fixes[0].Op)
	assert.Equal(t, types.Int(100), fixes[0].Constant)
	assert.Equal(t, types.Int(80), fixes[0].Left.Value())
}

func TestDeleteViolationsTouching(t *testing.T) {
	s := newHospitalStore(t)
	ctx := context.Background()
	_, c2 := seedViolation(t, s)

	var partners []int
	var deleted int64
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		partners, err = tx.RepairPartners(ctx, c2)
		if err != nil {
			return err
		}
		deleted, err = tx.DeleteViolationsTouching(ctx, c2)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1}, partners)
	assert.Equal(t, int64(4), deleted)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestUpdateCellAndAudit(t *testing.T) {
	s := newHospitalStore(t)
	ctx := context.Background()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	c2 := cellOf(t, "hospital_noise", "city", 2, types.Text("Chicgo"))
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.UpdateCell(ctx, c2, types.Text("Chicago")); err != nil {
			return err
		}
		_, err := tx.InsertAudit(ctx, types.AuditRecord{
			VID: 1, TID: 2, Table: "hospital_noise", Attribute: "city",
			OldValue: "Chicgo", NewValue: "Chicago",
		})
		return err
	})
	require.NoError(t, err)

	cell, err := s.Cell(ctx, "hospital_noise", 2, "city")
	require.NoError(t, err)
	assert.Equal(t, types.Text("Chicago"), cell.Value())

	log, err := s.AuditLog(ctx)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, 1, log[0].ID)
	assert.Equal(t, "Chicgo", log[0].OldValue)
	assert.Equal(t, "Chicago", log[0].NewValue)
	assert.True(t, fixed.Equal(log[0].Time))
}

func TestUpdateCell_ZeroRowsRollsBack(t *testing.T) {
	s := newHospitalStore(t)
	ctx := context.Background()

	missing := cellOf(t, "hospital_noise", "city", 99, types.Text("x"))
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.InsertAudit(ctx, types.AuditRecord{VID: 1, TID: 99, Table: "hospital_noise", Attribute: "city"}); err != nil {
			return err
		}
		return tx.UpdateCell(ctx, missing, types.Text("y"))
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoRowsUpdated))
	assert.True(t, errors.IsStorageError(err))

	log, err := s.AuditLog(ctx)
	require.NoError(t, err)
	assert.Empty(t, log, "audit insert must roll back with the failed update")
}

func TestBatchRows(t *testing.T) {
	assert.Equal(t, 10, batchRows(10, 6))
	assert.Equal(t, maxBindParams/11, batchRows(0, 11))
	assert.Equal(t, maxBindParams/11, batchRows(4096, 11))
}

func TestInsertViolations_LargeBatch(t *testing.T) {
	s := newHospitalStore(t)
	ctx := context.Background()

	var violations []types.Violation
	for i := 1; i <= 3000; i++ {
		violations = append(violations, types.Violation{
			ID: i, RuleID: "r",
			Cells: []types.Cell{
				cellOf(t, "hospital_noise", "city", i, types.Text("a")),
				cellOf(t, "hospital_noise", "zipcode", i, types.Null()),
			},
		})
	}
	err := s.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertViolations(ctx, violations, 4096)
	})
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3000, stats.Violations)
	assert.Equal(t, 6000, stats.ViolationCells)
}

func TestStore_QueryFailureIsStorageError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	s := New(db.Wrap(mockDB, db.DriverSQLite), zaptest.NewLogger(t).Sugar())
	mock.ExpectQuery("SELECT DISTINCT tablename").WillReturnError(errors.New("disk I/O error"))

	_, err = s.ViolatedColumns(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsStorageError(err))
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ZeroRowUpdateWithMock(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	s := New(db.Wrap(mockDB, db.DriverPostgres), zaptest.NewLogger(t).Sugar())
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "t" SET "a" = \$1 WHERE tid = \$2`).
		WithArgs("v", 5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	cell := cellOf(t, "t", "a", 5, types.Text("old"))
	err = s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.UpdateCell(context.Background(), cell, types.Text("v"))
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoRowsUpdated))
	assert.Contains(t, errors.FlattenDetails(err), "t.a[5]")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrainingRoundTrip(t *testing.T) {
	s := newHospitalStore(t)
	ctx := context.Background()

	t1, err := s.Tuple(ctx, "hospital_noise", 1)
	require.NoError(t, err)
	t2, err := s.Tuple(ctx, "hospital_noise", 2)
	require.NoError(t, err)

	require.NoError(t, s.SaveTraining(ctx, "s1", []types.TrainingInstance{
		{Label: types.LabelNo, Tuple: t1, Attribute: "city", Proposed: types.Text("Chicgo"), Similarity: 0.5},
		{Label: types.LabelYes, Tuple: t2, Attribute: "beds", Proposed: types.Int(90), Similarity: 0.25},
	}))
	require.NoError(t, s.SaveTraining(ctx, "s2", []types.TrainingInstance{
		{Label: types.LabelYes, Tuple: t2, Attribute: "city", Proposed: types.Text("Chicago"), Similarity: 0.75},
	}))

	set, err := s.TrainingSet(ctx, "hospital_noise")
	require.NoError(t, err)
	require.Len(t, set, 3)
	assert.Equal(t, types.LabelNo, set[0].Label)
	assert.Equal(t, 1, set[0].Tuple.TID())
	assert.Equal(t, types.Text("Chicgo"), set[0].Proposed)
	assert.Equal(t, types.Int(90), set[1].Proposed)
	assert.Equal(t, 0.25, set[1].Similarity)
	assert.Equal(t, "city", set[2].Attribute)

	empty, err := s.TrainingSet(ctx, "hospital_clean")
	require.NoError(t, err)
	assert.Empty(t, empty)

	err = s.SaveTraining(ctx, "s3", []types.TrainingInstance{{Tuple: t1, Attribute: "city", Proposed: types.Text("x")}})
	assert.True(t, errors.IsInvalidInputError(err))
}

func TestTrainingSet_SkipsRemovedTuples(t *testing.T) {
	s := newHospitalStore(t)
	ctx := context.Background()

	t3, err := s.Tuple(ctx, "hospital_noise", 3)
	require.NoError(t, err)
	require.NoError(t, s.SaveTraining(ctx, "s1", []types.TrainingInstance{
		{Label: types.LabelYes, Tuple: t3, Attribute: "city", Proposed: types.Text("New York"), Similarity: 1},
	}))
	_, err = s.DB().Exec("DELETE FROM hospital_noise WHERE tid = 3")
	require.NoError(t, err)

	set, err := s.TrainingSet(ctx, "hospital_noise")
	require.NoError(t, err)
	assert.Empty(t, set)
}
