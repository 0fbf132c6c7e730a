package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetters(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetUserID(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithUserID(ctx, "user-9")
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "user-9", GetUserID(ctx))
}

func TestKeysDoNotCollideWithStrings(t *testing.T) {
	ctx := context.WithValue(context.Background(), "request_id", "plain") //nolint:staticcheck
	assert.Empty(t, GetRequestID(ctx))
}
