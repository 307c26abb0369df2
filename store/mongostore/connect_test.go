package mongostore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectRejectsMalformedURI(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	client, err := Connect(ctx, "not-a-mongodb-uri")
	require.Error(t, err)
	require.Nil(t, client)
}
