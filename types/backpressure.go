package types

import "github.com/datasnap-io/snapstream/utils"

// BackpressurePolicy governs producer behavior when the consumer cannot keep
// up with the emission rate.
type BackpressurePolicy string

const (
	// DropOldest evicts the oldest buffered snapshot to make room.
	DropOldest BackpressurePolicy = "drop_oldest"
	// DropLatest discards the incoming snapshot when the buffer is full.
	DropLatest BackpressurePolicy = "drop_latest"
	// ErrorOnOverflow terminates the stream with ErrBufferOverflow.
	ErrorOnOverflow BackpressurePolicy = "error_on_overflow"
	// BufferUnbounded buffers every snapshot without limit.
	BufferUnbounded BackpressurePolicy = "buffer_unbounded"
	// BlockProducer blocks the emitting context until the buffer has room.
	BlockProducer BackpressurePolicy = "block_producer"
)

var backpressurePolicies = []BackpressurePolicy{
	DropOldest, DropLatest, ErrorOnOverflow, BufferUnbounded, BlockProducer,
}

func (p BackpressurePolicy) Validate() error {
	if !utils.ExistInArray(backpressurePolicies, p) {
		return ErrInvalidArgument.New("unknown backpressure policy [%s]", p)
	}
	return nil
}
