package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/authflow/domain"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	var got []*domain.UserRecord
	unsubscribe := b.Subscribe(func(u *domain.UserRecord) {
		got = append(got, u)
	})

	alice := &domain.UserRecord{ID: "u-1", Username: "alice"}
	b.Publish(ctx, alice)
	b.Publish(ctx, nil) // logout

	require.Len(t, got, 2)
	assert.Equal(t, alice, got[0])
	assert.Nil(t, got[1])

	unsubscribe()
	b.Publish(ctx, alice)
	assert.Len(t, got, 2, "no delivery after unsubscribe")

	// Unsubscribing twice is harmless.
	unsubscribe()
}

func TestMemoryBusMultipleSubscribers(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	var first, second int
	b.Subscribe(func(*domain.UserRecord) { first++ })
	b.Subscribe(func(*domain.UserRecord) { second++ })

	b.Publish(ctx, &domain.UserRecord{Username: "alice"})
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestMemoryBusUnsubscribeDuringPublish(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	calls := 0
	var unsubscribe func()
	unsubscribe = b.Subscribe(func(*domain.UserRecord) {
		calls++
		unsubscribe()
	})

	b.Publish(ctx, nil)
	b.Publish(ctx, nil)
	assert.Equal(t, 1, calls, "handler removed itself on first delivery")
}
