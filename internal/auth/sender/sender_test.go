package sender

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevSenderKeepsLatestAndMasksLogs(t *testing.T) {
	var buf bytes.Buffer
	s := NewDevSender(slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := context.Background()
	exp := time.Now().Add(time.Minute)

	require.NoError(t, s.SendCode(ctx, "jane@example.com", "111111", exp))
	require.NoError(t, s.SendCode(ctx, "jane@example.com", "222222", exp))

	got, ok := s.Last("jane@example.com")
	require.True(t, ok)
	assert.Equal(t, "222222", got.Code)

	_, ok = s.Last("other@example.com")
	assert.False(t, ok)

	assert.NotContains(t, buf.String(), "111111")
	assert.NotContains(t, buf.String(), "222222")
	assert.NotContains(t, buf.String(), "jane@example.com")
	assert.Contains(t, buf.String(), "j***@example.com")
}
