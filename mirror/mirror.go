// Package mirror applies one operation to a primary backend and then, in
// binding order, to every shadow backend.
//
// The primary is authoritative: its failure aborts the call before any
// shadow is touched. Shadow failures never abort the fan-out and never undo
// the primary; they are collected into a *mirrorm.MirrorError that is
// returned together with the primary result.
//
//	n, err := mirror.Mirror(ctx, c, "delete", func(ctx context.Context, conn *sql.Connection) (int64, error) {
//	    ...
//	})
//	if me, ok := mirrorm.AsMirrorError(err); ok {
//	    // n is the primary's result; me lists the failing shadows.
//	}
package mirror

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/mirrorm"
	"github.com/syssam/mirrorm/dialect/sql"
)

// Recorder receives mirroring outcomes. *metrics.Collector implements it.
type Recorder interface {
	// MirrorCompleted is called once per mirrored call that reached the
	// shadows, with the number of shadows that failed.
	MirrorCompleted(op string, shadows, failures int, d time.Duration)
	// ShadowFailed is called for every failing shadow.
	ShadowFailed(op, shadow string)
}

// Coordinator fans operations out over a primary and its shadows. It holds
// no per-call state and may be shared, but shadows are always written
// sequentially.
type Coordinator struct {
	primary  *sql.Connection
	shadows  []*sql.Connection
	logger   *slog.Logger
	recorder Recorder
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. It defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithRecorder sets the Recorder notified of mirroring outcomes.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// New returns a Coordinator writing to primary first, then to shadows in
// the given order.
func New(primary *sql.Connection, shadows []*sql.Connection, opts ...Option) *Coordinator {
	c := &Coordinator{
		primary: primary,
		shadows: append([]*sql.Connection(nil), shadows...),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Primary returns the primary connection.
func (c *Coordinator) Primary() *sql.Connection {
	return c.primary
}

// Shadows returns the shadow connections in binding order.
func (c *Coordinator) Shadows() []*sql.Connection {
	return append([]*sql.Connection(nil), c.shadows...)
}

// Func is an operation applied to one backend.
type Func[T any] func(ctx context.Context, conn *sql.Connection) (T, error)

// Mirror runs fn on the primary and, if it succeeded, on every shadow. The
// primary's result is returned even when shadows failed, in which case the
// error is a *mirrorm.MirrorError.
func Mirror[T any](ctx context.Context, c *Coordinator, op string, fn Func[T]) (T, error) {
	if c.primary == nil {
		var zero T
		return zero, mirrorm.NewConfigurationError(op, "primary connection is not set")
	}
	// A primary failure is returned as is; the caller logs the outcome.
	result, err := fn(ctx, c.primary)
	if err != nil {
		return result, err
	}
	return result, c.fanOut(ctx, op, func(ctx context.Context, conn *sql.Connection) error {
		_, err := fn(ctx, conn)
		return err
	})
}

// Replicate runs fn on every shadow only. It is used after a primary write
// whose result parameterizes the shadow statements, such as the generated
// key of an insert.
func (c *Coordinator) Replicate(ctx context.Context, op string, fn func(ctx context.Context, conn *sql.Connection) error) error {
	return c.fanOut(ctx, op, fn)
}

func (c *Coordinator) fanOut(ctx context.Context, op string, fn func(context.Context, *sql.Connection) error) error {
	if len(c.shadows) == 0 {
		return nil
	}
	id := uuid.New().String()
	start := time.Now()
	var failures []mirrorm.ShadowFailure
	for _, shadow := range c.shadows {
		if err := fn(ctx, shadow); err != nil {
			c.logger.WarnContext(ctx, "shadow operation failed",
				"op", op,
				"mirror_id", id,
				"shadow", shadow.String(),
				"error", err,
			)
			failures = append(failures, mirrorm.ShadowFailure{Shadow: shadow.String(), Err: err})
			if c.recorder != nil {
				c.recorder.ShadowFailed(op, shadow.String())
			}
			continue
		}
		c.logger.DebugContext(ctx, "shadow operation applied",
			"op", op,
			"mirror_id", id,
			"shadow", shadow.String(),
		)
	}
	if c.recorder != nil {
		c.recorder.MirrorCompleted(op, len(c.shadows), len(failures), time.Since(start))
	}
	if len(failures) > 0 {
		return &mirrorm.MirrorError{Op: op, ID: id, Failures: failures}
	}
	return nil
}
