package constants

import "time"

const (
	// DefaultBufferSize is the emitter queue capacity for bounded
	// backpressure policies when WithBufferSize is not supplied.
	DefaultBufferSize = 16

	// DefaultDebounceInterval spaces out change callbacks for a path in the
	// filesystem store; editors often trigger multiple writes per save.
	DefaultDebounceInterval = 50 * time.Millisecond

	// DefaultMaxOpenConns bounds the postgres store's connection pool when
	// the config leaves it unset.
	DefaultMaxOpenConns = 4

	// Reconnect bounds for the postgres notification listener.
	MinListenerReconnect = 10 * time.Second
	MaxListenerReconnect = time.Minute

	// LogFolder is the viper key that, when set, enables rotating file logs.
	LogFolder = "LOG_FOLDER"
)
