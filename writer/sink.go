// Package writer holds the sinks normalized records are delivered to.
package writer

import (
	"context"
	"fmt"

	"cryptonorm/models"
)

// Sink receives one normalized record at a time. line is the record's JSON
// encoding without a trailing newline. Implementations must be safe for
// concurrent use.
type Sink interface {
	Name() string
	Write(ctx context.Context, msg models.Message, line []byte) error
	Close() error
}

// SinkError wraps a failed write with the sink name.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string { return fmt.Sprintf("%s sink: %v", e.Sink, e.Err) }

func (e *SinkError) Unwrap() error { return e.Err }
