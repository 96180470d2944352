package race

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errA = errors.New("a failed")
	errB = errors.New("b failed")
	errC = errors.New("c failed")
)

func TestFirstReturnsFirstSuccessWithoutWaiting(t *testing.T) {
	aDone := make(chan struct{})
	releaseC := make(chan struct{})
	cDone := make(chan struct{})

	ops := []Op[string]{
		func() (string, error) {
			defer close(aDone)
			return "", errA
		},
		func() (string, error) {
			<-aDone
			return "b", nil
		},
		func() (string, error) {
			defer close(cDone)
			<-releaseC
			return "", errC
		},
	}

	v, err := First(ops, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	// C is still pending, its failure must not be observable
	close(releaseC)
	<-cDone
}

func TestFirstAggregatesErrorsInInputOrder(t *testing.T) {
	secondFailed := make(chan struct{})

	ops := []Op[int]{
		func() (int, error) {
			<-secondFailed
			return 0, errA
		},
		func() (int, error) {
			defer close(secondFailed)
			return 0, errB
		},
	}

	_, err := First(ops, nil)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, []error{errA, errB}, agg.Errors)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, "all 2 attempts failed: [a failed; b failed]", err.Error())
}

func TestFirstDiscardsLateSuccesses(t *testing.T) {
	winnerReturned := make(chan struct{})
	discarded := make(chan int, 1)

	ops := []Op[int]{
		func() (int, error) {
			return 1, nil
		},
		func() (int, error) {
			<-winnerReturned
			return 2, nil
		},
	}

	v, err := First(ops, func(v int) { discarded <- v })
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	close(winnerReturned)

	select {
	case late := <-discarded:
		assert.Equal(t, 2, late)
	case <-time.After(5 * time.Second):
		t.Fatal("late success was not discarded")
	}
}

func TestFirstWithoutOps(t *testing.T) {
	_, err := First[int](nil, nil)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Empty(t, agg.Errors)
}
