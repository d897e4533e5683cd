package utils

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompareValues(t *testing.T) {
	assert.Equal(t, 0, CompareValues(nil, nil))
	assert.Equal(t, -1, CompareValues(nil, 1))
	assert.Equal(t, 1, CompareValues(1, nil))

	assert.Equal(t, -1, CompareValues(2, 10), "numbers compare numerically, not lexically")
	assert.Equal(t, 0, CompareValues(int64(3), float64(3)))

	earlier := time.Now()
	later := earlier.Add(time.Hour)
	assert.Equal(t, -1, CompareValues(earlier, later))

	assert.Equal(t, -1, CompareValues("apples", "bananas"))
}

func TestExistInArray(t *testing.T) {
	assert.True(t, ExistInArray([]string{"a", "b"}, "b"))
	assert.False(t, ExistInArray([]string{"a", "b"}, "c"))
}

func TestErrExecSequential(t *testing.T) {
	calls := 0
	err := ErrExecSequential(
		func() error { calls++; return fmt.Errorf("first") },
		func() error { calls++; return nil },
		func() error { calls++; return fmt.Errorf("second") },
	)
	assert.Equal(t, 3, calls, "every function runs despite earlier failures")
	assert.ErrorContains(t, err, "first")
	assert.ErrorContains(t, err, "second")

	assert.NoError(t, ErrExecSequential(func() error { return nil }))
}

func TestULIDIsUniqueAndSortable(t *testing.T) {
	a := ULID()
	b := ULID()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
	assert.LessOrEqual(t, a, b)
}
