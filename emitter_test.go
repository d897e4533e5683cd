package snapstream

import (
	"testing"
	"time"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasnap-io/snapstream/types"
)

func testSnapshot() *types.Rows {
	return types.NewRows([]string{"id"}, []types.Record{{"id": 1}})
}

func TestEmitterDropOldest(t *testing.T) {
	e := newEmitter(types.DropOldest, 2)
	first, second, third := testSnapshot(), testSnapshot(), testSnapshot()

	e.emit(first)
	e.emit(second)
	e.emit(third)

	assert.True(t, first.Closed(), "the oldest snapshot is evicted and released")

	e.start()
	assert.Same(t, second, <-e.out)
	assert.Same(t, third, <-e.out)

	e.close(nil)
	_, ok := <-e.out
	assert.False(t, ok)
}

func TestEmitterDropLatest(t *testing.T) {
	e := newEmitter(types.DropLatest, 2)
	first, second, third := testSnapshot(), testSnapshot(), testSnapshot()

	e.emit(first)
	e.emit(second)
	e.emit(third)

	assert.True(t, third.Closed(), "the incoming snapshot is discarded and released")
	assert.False(t, first.Closed())

	e.start()
	assert.Same(t, first, <-e.out)
	assert.Same(t, second, <-e.out)
	e.close(nil)
}

func TestEmitterErrorOnOverflow(t *testing.T) {
	e := newEmitter(types.ErrorOnOverflow, 1)
	var overflowErr error
	e.overflow = func(err error) {
		overflowErr = err
		e.close(err)
	}

	first, second := testSnapshot(), testSnapshot()
	e.emit(first)
	e.emit(second)

	require.Error(t, overflowErr)
	assert.True(t, errorx.IsOfType(overflowErr, types.ErrBufferOverflow))
	assert.True(t, second.Closed())
	assert.ErrorIs(t, e.Err(), overflowErr)
}

func TestEmitterBlockProducer(t *testing.T) {
	e := newEmitter(types.BlockProducer, 1)
	e.start()

	first, second, third := testSnapshot(), testSnapshot(), testSnapshot()
	e.emit(first)
	e.emit(second)

	// the pump holds one snapshot in flight and one fits the buffer, so a
	// third emission has to wait for the consumer
	unblocked := make(chan struct{})
	go func() {
		e.emit(third)
		close(unblocked)
	}()

	assert.Same(t, first, <-e.out)
	assert.Same(t, second, <-e.out)
	assert.Same(t, third, <-e.out)

	select {
	case <-unblocked:
	case <-time.After(receiveTimeout):
		t.Fatal("producer stayed blocked after the consumer caught up")
	}
	e.close(nil)
}

func TestEmitterBlockedProducerEscapesOnClose(t *testing.T) {
	e := newEmitter(types.BlockProducer, 1)

	first, second := testSnapshot(), testSnapshot()
	e.emit(first)

	unblocked := make(chan struct{})
	go func() {
		e.emit(second)
		close(unblocked)
	}()

	time.Sleep(20 * time.Millisecond)
	e.close(nil)

	select {
	case <-unblocked:
	case <-time.After(receiveTimeout):
		t.Fatal("producer stayed blocked across close")
	}
	assert.True(t, second.Closed())
}

func TestEmitterCloseReleasesQueued(t *testing.T) {
	e := newEmitter(types.BufferUnbounded, 0)
	first, second := testSnapshot(), testSnapshot()

	e.emit(first)
	e.emit(second)
	e.close(nil)
	e.start()

	_, ok := <-e.out
	assert.False(t, ok, "no queued snapshot is delivered after close")
	assert.True(t, first.Closed())
	assert.True(t, second.Closed())
}

func TestEmitterEmitAfterCloseIsNoOp(t *testing.T) {
	e := newEmitter(types.BufferUnbounded, 0)
	e.start()
	e.close(nil)

	late := testSnapshot()
	e.emit(late)
	assert.True(t, late.Closed())

	_, ok := <-e.out
	assert.False(t, ok)
}
