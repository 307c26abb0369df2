package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/authflow/domain"
)

func openTestStore(t *testing.T, path string) *BoltStore {
	t.Helper()
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "session.db"))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	rec := &domain.SessionRecord{
		AccessToken: "tok-1",
		TokenKind:   "Bearer",
		SessionID:   "sess-1",
		ExpiresAt:   time.Now().Add(15 * time.Minute).UTC().Truncate(time.Millisecond),
		User:        &domain.UserRecord{ID: "u-1", Username: "alice", Role: "user", Status: domain.UserStatusActive},
	}
	require.NoError(t, s.Save(ctx, rec))

	loaded, err = s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, rec.AccessToken, loaded.AccessToken)
	assert.Equal(t, rec.SessionID, loaded.SessionID)
	assert.True(t, rec.ExpiresAt.Equal(loaded.ExpiresAt))
	require.NotNil(t, loaded.User)
	assert.Equal(t, "alice", loaded.User.Username)
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := Open(path)
	require.NoError(t, err)
	rec := &domain.SessionRecord{
		AccessToken: "tok-1",
		TokenKind:   "Bearer",
		SessionID:   "sess-1",
		ExpiresAt:   time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, s.Save(ctx, rec))
	require.NoError(t, s.Close())

	// A fresh open sees the full record, like a reloaded page.
	reopened := openTestStore(t, path)
	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "sess-1", loaded.SessionID)
	assert.Equal(t, "tok-1", loaded.AccessToken)
}

func TestBoltStoreClear(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "session.db"))

	require.NoError(t, s.Save(ctx, &domain.SessionRecord{SessionID: "sess-1", AccessToken: "tok"}))
	require.NoError(t, s.Clear(ctx))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.NoError(t, s.Clear(ctx))
}
