package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pdsno.io/controller/internal/envelope"
	"pdsno.io/controller/internal/pkg/logger"
	"pdsno.io/controller/internal/pkg/worker"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestBus_SendDeliversToRegisteredHandler(t *testing.T) {
	ctx := context.Background()
	pools, err := worker.NewPools(ctx, worker.DefaultPoolConfig())
	require.NoError(t, err)
	defer pools.Shutdown()

	bus := NewBus(pools.General)
	bus.Register("regional-1", func(ctx context.Context, e *envelope.Envelope) (*envelope.Envelope, error) {
		return &envelope.Envelope{MessageID: "reply-1", MessageType: "ACK", SenderID: e.RecipientID, RecipientID: e.SenderID}, nil
	})

	e := &envelope.Envelope{
		MessageID: "msg-1", MessageType: "DISCOVERY_REPORT",
		SenderID: "local-1", RecipientID: "regional-1",
		Timestamp: time.Now(), Nonce: "n1", Payload: json.RawMessage(`{}`),
	}

	reply, err := bus.Send(ctx, e)
	require.NoError(t, err)
	require.NotNil(t, reply)
	require.Equal(t, "ACK", reply.MessageType)
}

func TestBus_SendUnknownRecipientFails(t *testing.T) {
	ctx := context.Background()
	pools, err := worker.NewPools(ctx, worker.DefaultPoolConfig())
	require.NoError(t, err)
	defer pools.Shutdown()

	bus := NewBus(pools.General)
	e := &envelope.Envelope{MessageID: "msg-1", MessageType: "X", SenderID: "a", RecipientID: "ghost", Timestamp: time.Now(), Nonce: "n1"}

	_, err = bus.Send(ctx, e)
	require.Error(t, err)
}
