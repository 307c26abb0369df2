// Package store provides durable persistence of the current session
// record. A store is the single source of truth the request pipeline,
// the refresh coordinator and the session manager all read and write.
package store

import (
	"context"

	"go.pilab.hu/authflow/domain"
)

// SessionStore persists the current session record.
//
// Save writes all record fields as one unit; a record never partially
// exists. Load returns nil when no record is stored; callers must not
// treat that as an error. Clear removes every field together and is a
// no-op when nothing is stored. Persistence failures are surfaced to
// the caller and leave the previously stored record intact.
type SessionStore interface {
	Save(ctx context.Context, record *domain.SessionRecord) error
	Load(ctx context.Context) (*domain.SessionRecord, error)
	Clear(ctx context.Context) error
}
