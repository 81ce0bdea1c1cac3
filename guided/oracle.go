package guided

import (
	"context"

	"github.com/teranos/mend/am"
	"github.com/teranos/mend/classify"
	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/types"
)

// Oracle decides whether a proposed fix is correct.
type Oracle interface {
	Accept(ctx context.Context, fix types.Fix, tuple types.Tuple) (bool, error)
}

// CellReader reads one cell of a table.
type CellReader interface {
	Cell(ctx context.Context, table string, tid int, attribute string) (types.Cell, error)
}

// GroundTruth answers from a clean copy of the dirty table.
type GroundTruth struct {
	cells      CellReader
	cleanTable func(string) string
	dirtyCell  bool
}

func cleanResolver(cleanTable string) func(string) string {
	if cleanTable == "" {
		return am.DeriveCleanTable
	}
	return func(string) string { return cleanTable }
}

// NewGroundTruth accepts a fix whose proposed value equals the clean value.
// Clean values come from cleanTable, or from the table name derived by
// am.DeriveCleanTable when cleanTable is empty.
func NewGroundTruth(cells CellReader, cleanTable string) *GroundTruth {
	return &GroundTruth{cells: cells, cleanTable: cleanResolver(cleanTable)}
}

// NewDirtyCellOracle accepts any fix on a cell whose current value differs
// from the clean value, whatever value the fix proposes.
func NewDirtyCellOracle(cells CellReader, cleanTable string) *GroundTruth {
	return &GroundTruth{cells: cells, cleanTable: cleanResolver(cleanTable), dirtyCell: true}
}

// Accept compares the fix against the clean value at the same coordinate.
func (g *GroundTruth) Accept(ctx context.Context, fix types.Fix, _ types.Tuple) (bool, error) {
	cell := fix.Left
	clean, err := g.cells.Cell(ctx, g.cleanTable(cell.Table()), cell.TID(), cell.Attribute())
	if err != nil {
		return false, errors.Wrap(err, "ground truth")
	}
	if !g.dirtyCell {
		return clean.Value().Equal(fix.RightValue()), nil
	}
	dirty, err := g.cells.Cell(ctx, cell.Table(), cell.TID(), cell.Attribute())
	if err != nil {
		return false, errors.Wrap(err, "dirty cell")
	}
	return !clean.Value().Equal(dirty.Value()), nil
}

// ErrUntrained is returned by a ClassifierOracle whose model has not seen
// both an accepted and a rejected example.
var ErrUntrained = errors.New("classifier has not been trained on both labels")

// readiness is implemented by classifiers that can tell whether they have
// enough evidence to decide.
type readiness interface {
	Ready() bool
}

// ClassifierOracle accepts what the classifier thinks is more likely correct.
type ClassifierOracle struct {
	classifier classify.Classifier
}

// NewClassifierOracle creates an oracle backed by c.
func NewClassifierOracle(c classify.Classifier) *ClassifierOracle {
	return &ClassifierOracle{classifier: c}
}

// Accept predicts on the candidate and accepts when Yes outweighs No. A
// classifier without evidence for both labels is refused with ErrUntrained.
func (o *ClassifierOracle) Accept(ctx context.Context, fix types.Fix, tuple types.Tuple) (bool, error) {
	if r, ok := o.classifier.(readiness); ok && !r.Ready() {
		return false, errors.MarkClassifier(errors.WithStack(ErrUntrained))
	}
	d, err := o.classifier.Predict(ctx, types.TrainingInstance{
		Label:      types.LabelUnset,
		Tuple:      tuple,
		Attribute:  fix.Left.Attribute(),
		Proposed:   fix.RightValue(),
		Similarity: classify.Similarity(fix.Left.Value(), fix.RightValue()),
	})
	if err != nil {
		return false, errors.MarkClassifier(errors.Wrap(err, "classifier oracle"))
	}
	return d.Yes() > d.No(), nil
}
