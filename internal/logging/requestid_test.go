package logging

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestID(t *testing.T) {
	id := NewRequestID()
	assert.Len(t, id, 16)
	_, err := hex.DecodeString(id)
	require.NoError(t, err, "request ids are lowercase hex")
	assert.NotEqual(t, id, NewRequestID())
}

func TestRequestIDContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFrom(ctx))

	id := NewRequestID()
	ctx = WithRequestID(ctx, id)
	assert.Equal(t, id, RequestIDFrom(ctx))
}

func TestFromContextTagsRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	log := FromContext(context.Background(), base)
	log.Info().Msg("untagged")
	assert.NotContains(t, buf.String(), "request_id")

	buf.Reset()
	ctx := WithRequestID(context.Background(), "deadbeefdeadbeef")
	tagged := FromContext(ctx, base)
	tagged.Info().Msg("tagged")
	assert.Contains(t, buf.String(), `"request_id":"deadbeefdeadbeef"`)
}
