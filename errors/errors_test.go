package errors

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWithDetail(t *testing.T) {
	err := WithDetail(New("error"), "cell hospital.city[3]")

	details := GetAllDetails(err)
	require.Len(t, details, 1)
	assert.Equal(t, "cell hospital.city[3]", details[0])
}

func TestMarkStorage(t *testing.T) {
	cause := Wrap(sql.ErrConnDone, "select tuple 7")
	err := MarkStorage(cause)

	assert.True(t, IsStorageError(err))
	assert.True(t, Is(err, sql.ErrConnDone), "cause chain must survive marking")
	assert.Contains(t, err.Error(), "select tuple 7")
	assert.False(t, IsClassifierError(err))

	assert.Nil(t, MarkStorage(nil))
}

func TestMarkClassifier(t *testing.T) {
	err := MarkClassifier(New("model not trained"))

	assert.True(t, IsClassifierError(err))
	assert.False(t, IsStorageError(err))
	assert.Nil(t, MarkClassifier(nil))
}

func TestSentinels(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"solver infeasible", Wrap(ErrSolverInfeasible, "cluster t3.age"), IsSolverInfeasible},
		{"not found", NewNotFoundError("tuple %d", 4), IsNotFoundError},
		{"invalid input", NewInvalidInputError("empty attribute"), IsInvalidInputError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.False(t, tt.check(nil))
			assert.False(t, tt.check(New("unrelated")))
		})
	}
}

func TestNoRowsUpdatedIsStorage(t *testing.T) {
	err := MarkStorage(Wrapf(ErrNoRowsUpdated, "update hospital.city tid=%d", 9))

	assert.True(t, Is(err, ErrNoRowsUpdated))
	assert.True(t, IsStorageError(err))
}

func TestAssertionFailure(t *testing.T) {
	err := AssertionFailedf("unsupported value kind %d", 9)
	assert.True(t, HasAssertionFailure(err))
}

func TestGetStack(t *testing.T) {
	err := New("with stack")
	assert.NotNil(t, GetStack(err))
}
