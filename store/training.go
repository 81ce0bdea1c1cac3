package store

import (
	"context"
	"database/sql"

	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/logger"
	"github.com/teranos/mend/types"
)

// InsertTraining appends the labelled answers of session, minting ids after
// the current maximum.
func (t *Tx) InsertTraining(ctx context.Context, session string, set []types.TrainingInstance, batch int) error {
	if len(set) == 0 {
		return nil
	}
	first, err := t.nextID(ctx, maxTrainingIDQuery, "training")
	if err != nil {
		return err
	}
	rows := make([][]any, 0, len(set))
	for i, in := range set {
		if in.Label != types.LabelYes && in.Label != types.LabelNo {
			return errors.NewInvalidInputError("training instance %d of session %s has no label", i, session)
		}
		rows = append(rows, []any{
			first + i, session, in.Tuple.Table(), in.Tuple.TID(), in.Attribute,
			persisted(in.Proposed), in.Similarity, int(in.Label),
		})
	}
	return t.insertRows(ctx, "training", trainingColumns, rows, batch)
}

// SaveTraining records the answers of session in their own transaction.
func (s *Store) SaveTraining(ctx context.Context, session string, set []types.TrainingInstance) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertTraining(ctx, session, set, 0)
	})
}

// TrainingSet replays every recorded answer on table, oldest first. Tuples
// are read at their current state; answers whose tuple no longer exists are
// skipped.
func (s *Store) TrainingSet(ctx context.Context, table string) ([]types.TrainingInstance, error) {
	var rows []struct {
		TupleID    int            `db:"tupleid"`
		Attribute  string         `db:"attribute"`
		Proposed   sql.NullString `db:"proposed"`
		Similarity float64        `db:"similarity"`
		Label      int            `db:"label"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(trainingSetQuery), table); err != nil {
		return nil, storageErr(err, "select training set of %s", table)
	}

	if len(rows) == 0 {
		return nil, nil
	}
	if _, err := s.Schema(ctx, table); err != nil {
		return nil, err
	}

	set := make([]types.TrainingInstance, 0, len(rows))
	for _, r := range rows {
		label := types.Label(r.Label)
		if label != types.LabelYes && label != types.LabelNo {
			return nil, errors.NewInvalidInputError("training row for %s[%d] has label %d", table, r.TupleID, r.Label)
		}
		tuple, err := s.Tuple(ctx, table, r.TupleID)
		if errors.IsNotFoundError(err) {
			s.logger.Warnw("Training tuple no longer exists",
				logger.FieldTable, table, logger.FieldTupleID, r.TupleID)
			continue
		}
		if err != nil {
			return nil, err
		}
		col, err := types.NewColumn(table, r.Attribute)
		if err != nil {
			return nil, err
		}
		proposed, err := s.persistedConstant(ctx, col, r.Proposed)
		if err != nil {
			return nil, errors.Wrapf(err, "training row for %s[%d]", table, r.TupleID)
		}
		set = append(set, types.TrainingInstance{
			Label:      label,
			Tuple:      tuple,
			Attribute:  r.Attribute,
			Proposed:   proposed,
			Similarity: r.Similarity,
		})
	}
	return set, nil
}
