package event

import "context"

// Store is the append-only journal. Append assigns Seq; records are never
// mutated or deleted.
type Store interface {
	Append(ctx context.Context, e *Event) error
	List(ctx context.Context, opts ListOpts) ([]*Event, error)
}

// ListOpts filter the journal for polling consumers.
type ListOpts struct {
	AfterSeq int64
	Kind     Kind
	Limit    int
}
