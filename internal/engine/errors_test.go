package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/agreements/internal/store"
)

func TestRuntimeError(t *testing.T) {
	err := &RuntimeError{Code: ErrCodeStore, MessageID: 10, Command: "generate", Err: store.ErrNotFound}

	assert.Equal(t, "STORE_FAILURE: message 10 (generate): not found", err.Error())
	assert.ErrorIs(t, err, store.ErrNotFound)

	wrapped := fmt.Errorf("run: %w", err)
	assert.True(t, IsStoreError(wrapped))
	assert.False(t, IsGatewayError(wrapped))
	assert.False(t, IsStoreError(errors.New("plain")))

	gw := gatewayError(11, "execute", errors.New("gone"))
	assert.True(t, IsGatewayError(gw))
	assert.Equal(t, "GATEWAY_FAILURE: message 11 (execute): fetch message: gone", gw.Error())
}
