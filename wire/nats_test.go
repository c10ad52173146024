package wire

import (
	"testing"

	"github.com/casualjim/weft/pkg/natsx"
	"github.com/casualjim/weft/provider"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupNATS(t *testing.T) *nats.Conn {
	t.Helper()
	nc, err := natsx.NewClient(nats.Name("weft-test"))
	if err != nil {
		t.Skipf("nats server not available: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func TestNATSPublisher(t *testing.T) {
	nc := setupNATS(t)
	ctx := testContext(t)

	pub, err := NATS(nc)
	require.NoError(t, err)

	src := events{
		provider.StepStart{MessageID: "msg-1"},
		provider.TextDelta{Text: "Hello"},
		provider.TextDelta{Text: " there"},
		provider.Finish{FinishReason: provider.FinishReasonStop, Usage: provider.Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}},
	}

	received, err := pub.Subscribe(ctx, "weft.test.stream")
	require.NoError(t, err)
	require.NoError(t, pub.Publish(ctx, "weft.test.stream", src))

	var got []provider.StreamEvent
	for ev := range received {
		got = append(got, ev)
	}
	require.Len(t, got, len(src))
	assert.Equal(t, provider.TextDelta{Text: "Hello"}, got[1])
	finish, ok := got[3].(provider.Finish)
	require.True(t, ok)
	assert.Equal(t, provider.FinishReasonStop, finish.FinishReason)
	assert.Equal(t, int64(3), finish.Usage.TotalTokens)
}
