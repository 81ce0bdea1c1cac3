package repair

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/mend/am"
	"github.com/teranos/mend/classify"
	"github.com/teranos/mend/consistency"
	"github.com/teranos/mend/errors"
	mendtest "github.com/teranos/mend/internal/testing"
	"github.com/teranos/mend/rule"
	"github.com/teranos/mend/solver"
	"github.com/teranos/mend/store"
	"github.com/teranos/mend/types"
)

// detectedHospital returns a store whose violation and repair tables hold the
// zipcode -> city violation between tuples 1 and 2.
func detectedHospital(t *testing.T) *store.Store {
	t.Helper()
	database := mendtest.CreateTestDB(t)
	mendtest.CreateHospital(t, database)
	st := store.New(database, zaptest.NewLogger(t).Sugar())

	fd, err := rule.NewFD("zip_city", "hospital_noise", []string{"zipcode"}, []string{"city"})
	require.NoError(t, err)
	m, err := consistency.NewManager(st, []rule.Rule{fd}, 0, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	_, err = m.DetectAll(context.Background())
	require.NoError(t, err)
	return st
}

func hospitalOptions(t *testing.T, st *store.Store) Options {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	return Options{
		Store:  st,
		Solver: solver.New(st, solver.Config{Epsilon: am.DefaultEpsilon, CleanTable: am.DeriveCleanTable}, log),
		Logger: log,
	}
}

var cityColumn = types.Column{Table: "hospital_noise", Attribute: "city"}

func TestParseScoring(t *testing.T) {
	s, err := ParseScoring("")
	require.NoError(t, err)
	assert.Equal(t, ScoringVOI, s)

	s, err = ParseScoring("entropy")
	require.NoError(t, err)
	assert.Equal(t, ScoringEntropy, s)

	_, err = ParseScoring("magic")
	assert.True(t, errors.IsInvalidInputError(err))
}

func TestOptions_Validate(t *testing.T) {
	_, err := NewGroup(cityColumn, Options{})
	assert.True(t, errors.IsInvalidInputError(err))

	st := detectedHospital(t)
	opts := hospitalOptions(t, st)
	opts.Scoring = ScoringEntropy
	_, err = NewGroup(cityColumn, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier")
}

func TestGroup_PopulateVOI(t *testing.T) {
	st := detectedHospital(t)
	var populated int
	opts := hospitalOptions(t, st)
	opts.Hooks.Populated = func(col types.Column, _ time.Duration, n int) {
		assert.Equal(t, cityColumn, col)
		populated = n
	}
	g, err := NewGroup(cityColumn, opts)
	require.NoError(t, err)

	require.NoError(t, g.Populate(context.Background()))
	require.Equal(t, 2, g.Len())
	assert.Equal(t, 2, populated)

	// Both cells are pulled toward the other's value and satisfy their one
	// constraint, so the tie keeps tuple order.
	first, ok := g.TopFix(0)
	require.True(t, ok)
	assert.Equal(t, 1, first.Cell().TID())
	assert.Equal(t, types.Text("Chicgo"), first.Proposed())
	assert.Equal(t, 1.0, first.Score)
	assert.Equal(t, types.EQ, first.Fix.Op)

	second, ok := g.TopFix(1)
	require.True(t, ok)
	assert.Equal(t, 2, second.Cell().TID())
	assert.Equal(t, types.Text("Chicago"), second.Proposed())
	assert.InDelta(t, 1-1.0/7, second.Similarity, 1e-12)

	_, ok = g.TopFix(2)
	assert.False(t, ok)
	assert.False(t, g.HasNext(-1))
	assert.Equal(t, 2.0, g.TotalScore())

	in := second.Instance(types.LabelYes)
	assert.Equal(t, "city", in.Attribute)
	assert.Equal(t, 2, in.Tuple.TID())
	assert.Equal(t, types.LabelYes, in.Label)
}

type fixedClassifier struct {
	d   classify.Distribution
	err error
}

func (fixedClassifier) Train(context.Context, []types.TrainingInstance) error { return nil }
func (fixedClassifier) Update(context.Context, types.TrainingInstance) error  { return nil }
func (c fixedClassifier) Predict(context.Context, types.TrainingInstance) (classify.Distribution, error) {
	return c.d, c.err
}

func TestGroup_PopulateEntropy(t *testing.T) {
	st := detectedHospital(t)
	opts := hospitalOptions(t, st)
	opts.Scoring = ScoringEntropy
	opts.Classifier = fixedClassifier{d: classify.Uniform()}

	g, err := NewGroup(cityColumn, opts)
	require.NoError(t, err)
	require.NoError(t, g.Populate(context.Background()))
	require.Equal(t, 2, g.Len())
	for _, c := range g.Candidates() {
		assert.InDelta(t, math.Ln2, c.Score, 1e-12)
	}

	opts.Classifier = fixedClassifier{err: errors.New("model unavailable")}
	g, err = NewGroup(cityColumn, opts)
	require.NoError(t, err)
	err = g.Populate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsClassifierError(err))
}

type failingSolver struct{ err error }

func (s failingSolver) SolveCell(context.Context, types.Cell, []types.Fix) (types.Fix, error) {
	return types.Fix{}, s.err
}

func TestGroup_SolverFailureSkipsCell(t *testing.T) {
	st := detectedHospital(t)
	opts := hospitalOptions(t, st)
	opts.Solver = failingSolver{err: errors.Wrap(errors.ErrSolverInfeasible, "stuck")}
	failures := 0
	opts.Hooks.SolverFailure = func(types.Column, error) { failures++ }

	g, err := NewGroup(cityColumn, opts)
	require.NoError(t, err)
	require.NoError(t, g.Populate(context.Background()))
	assert.Zero(t, g.Len())
	assert.Equal(t, 2, failures)
}

func TestGroup_StorageFailureAborts(t *testing.T) {
	st := detectedHospital(t)
	opts := hospitalOptions(t, st)
	opts.Solver = failingSolver{err: errors.MarkStorage(errors.New("connection reset"))}

	g, err := NewGroup(cityColumn, opts)
	require.NoError(t, err)
	err = g.Populate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsStorageError(err))
}

func TestGroup_RankIsStable(t *testing.T) {
	g := &Group{}
	scores := []float64{1, 3, 1, 2, 3, 1}
	for i, s := range scores {
		g.candidates = append(g.candidates, Candidate{Score: s, Similarity: float64(i)})
	}

	order := func() []float64 {
		var out []float64
		for _, c := range g.candidates {
			out = append(out, c.Similarity)
		}
		return out
	}

	g.Rank()
	want := []float64{1, 4, 3, 0, 2, 5}
	assert.Equal(t, want, order())

	for i := 0; i < 3; i++ {
		g.Rank()
		assert.Equal(t, want, order(), "repeated rank must not reorder ties")
	}
}

func TestRankingManager_TopGroup(t *testing.T) {
	st := detectedHospital(t)
	rm, err := NewRankingManager(hospitalOptions(t, st))
	require.NoError(t, err)
	ctx := context.Background()

	// zipcode cells are violated but carry no fixes, so only city qualifies.
	g, err := rm.TopGroup(ctx)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, cityColumn, g.Column())
	assert.True(t, rm.IsFinished(cityColumn))

	g, err = rm.TopGroup(ctx)
	require.NoError(t, err)
	assert.Nil(t, g, "a finished column is never returned again")
}

func TestRankingManager_Empty(t *testing.T) {
	database := mendtest.CreateTestDB(t)
	mendtest.CreateHospital(t, database)
	st := store.New(database, zaptest.NewLogger(t).Sugar())

	rm, err := NewRankingManager(hospitalOptions(t, st))
	require.NoError(t, err)
	g, err := rm.TopGroup(context.Background())
	require.NoError(t, err)
	assert.Nil(t, g)
}
