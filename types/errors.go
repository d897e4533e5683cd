package types

import "github.com/joomcode/errorx"

// Errors is the namespace for every typed error this library raises.
var Errors = errorx.NewNamespace("snapstream")

var (
	// ErrInvalidArgument is raised synchronously at factory-call time for an
	// absent store or query, or for a query/policy that fails validation.
	ErrInvalidArgument = Errors.NewType("invalid_argument")

	// ErrQueryReturnedNull is raised when the store signals "no result" for a
	// locator, which is distinct from an empty result set.
	ErrQueryReturnedNull = Errors.NewType("query_returned_null")

	// ErrStoreFailure wraps any error surfaced by the store's query call or
	// watch registration. Terminal for the stream; never retried.
	ErrStoreFailure = Errors.NewType("store_failure")

	// ErrBufferOverflow terminates a stream running with the ErrorOnOverflow
	// backpressure policy once the consumer falls behind the buffer.
	ErrBufferOverflow = Errors.NewType("buffer_overflow")
)
