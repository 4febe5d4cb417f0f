package storage

import (
	"context"
	"time"
)

// UsageLog is the durable record of completed sessions.
//
// Implementations never rewrite existing content. Aggregate queries re-derive
// their answer from the stored records on every call and add the caller's live
// duration, so an open session is reflected without being flushed first.
type UsageLog interface {
	// Append persists one completed session.
	Append(ctx context.Context, rec Record) error

	// TotalDuration sums every stored session plus live.
	TotalDuration(ctx context.Context, live time.Duration) (time.Duration, error)

	// TodayDuration sums the sessions that started on ref's calendar day plus live.
	TodayDuration(ctx context.Context, ref time.Time, live time.Duration) (time.Duration, error)

	// Scan calls fn for every well-formed record in append order.
	Scan(ctx context.Context, fn func(Entry) error) error

	// Location returns a human readable location of the log (a file path).
	Location() string
}
