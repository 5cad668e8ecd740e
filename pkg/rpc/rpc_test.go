package rpc_test

import (
	"testing"

	"github.com/robopen/canexus"
	"github.com/robopen/canexus/internal/ident"
	"github.com/robopen/canexus/pkg/can"
	"github.com/robopen/canexus/pkg/can/queue"
	"github.com/robopen/canexus/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// firstNonce is the deterministic nonce a freshly constructed Context draws
// on its first NextNonce call: seed starts at 1, seed <- 1*75+74 = 149.
const firstNonce = 149

func newPair(t *testing.T) (ctxA, ctxB *canexus.Context, qa, qb *queue.Queue) {
	t.Helper()
	qa, qb = queue.Pair()
	ctxA, err := canexus.NewContext(1, qa)
	require.NoError(t, err)
	ctxB, err = canexus.NewContext(5, qb)
	require.NoError(t, err)
	return ctxA, ctxB, qa, qb
}

func TestRPCNonceNonZeroAndChanging(t *testing.T) {
	ctxA, _, _, _ := newPair(t)
	defer ctxA.Close()

	seen := make(map[uint8]bool)
	for i := 0; i < 100; i++ {
		n := ctxA.NextNonce()
		require.NotZero(t, n)
		seen[n] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestRPCSingleFrameScenario(t *testing.T) {
	ctxA, _, qa, qb := newPair(t)
	defer ctxA.Close()

	ackID := ident.BuildRPC(ident.RPCFields{FrameType: ident.RPCAck, Priority: ident.PriorityHigh, Sender: 5, Target: 1, Nonce: firstNonce})
	require.NoError(t, qb.Send(can.NewFrame(ackID, nil)))

	nonce, err := rpc.Call(ctxA, 5, ident.PriorityHigh, true, 0x42, []byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	assert.Equal(t, uint8(firstNonce), nonce)

	sent, err := qb.Receive(0)
	require.NoError(t, err)
	fields, err := ident.ParseRPC(sent.ID)
	require.NoError(t, err)
	assert.Equal(t, ident.RPCStartRPC, fields.FrameType)
	assert.Equal(t, uint8(firstNonce), fields.Nonce)
	require.GreaterOrEqual(t, int(sent.DLC), 3)
	assert.Equal(t, byte(0xC2), sent.Data[0])
}

func TestRPCNackPropagation(t *testing.T) {
	ctxA, _, _, qb := newPair(t)
	defer ctxA.Close()

	nackID := ident.BuildRPC(ident.RPCFields{FrameType: ident.RPCNack, Priority: ident.PriorityHigh, Sender: 5, Target: 1, Nonce: firstNonce})
	require.NoError(t, qb.Send(can.NewFrame(nackID, []byte{0x0B})))

	_, err := rpc.Call(ctxA, 5, ident.PriorityHigh, true, 0x01, nil)
	require.Error(t, err)
	var remote *canexus.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, byte(0x0B), remote.Code)
}

func TestRPCCallForbidsBroadcast(t *testing.T) {
	ctxA, _, _, _ := newPair(t)
	defer ctxA.Close()

	_, err := rpc.Call(ctxA, uint8(ident.AddrBroadcast), ident.PriorityHigh, true, 0x01, nil)
	assert.ErrorIs(t, err, canexus.ErrArgument)
}

func TestRPCOversizePayloadRejected(t *testing.T) {
	ctxA, _, _, _ := newPair(t)
	defer ctxA.Close()

	_, err := rpc.Call(ctxA, 5, ident.PriorityHigh, true, 0x01, make([]byte, rpc.MaxPayload+1))
	assert.ErrorIs(t, err, canexus.ErrArgument)
}

func TestRPCReceiveFailsOnWrongFamilyFrame(t *testing.T) {
	ctxA, _, _, qb := newPair(t)
	defer ctxA.Close()

	// A non-RPC frame, followed by a well-formed ACK that a skip-and-retry
	// loop would happily find instead.
	rtID := ident.BuildRT(ident.RTFields{FrameType: ident.RTMsg, Priority: ident.PriorityHigh, Sender: 5, Target: 1})
	require.NoError(t, qb.Send(can.NewFrame(rtID, []byte{0x01})))
	ackID := ident.BuildRPC(ident.RPCFields{FrameType: ident.RPCAck, Priority: ident.PriorityHigh, Sender: 5, Target: 1, Nonce: firstNonce})
	require.NoError(t, qb.Send(can.NewFrame(ackID, nil)))

	_, err := rpc.Receive(ctxA, 10)
	assert.ErrorIs(t, err, canexus.ErrProtocol)
}

func TestRPCReceiveReassemblesMultiFrame(t *testing.T) {
	ctxA, ctxB, _, _ := newPair(t)
	defer ctxA.Close()
	defer ctxB.Close()

	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i)
	}

	require.NoError(t, rpc.Respond(ctxB, 1, ident.PriorityHigh, 0x10, 0x77, payload))

	msg, err := rpc.Receive(ctxA, 10)
	require.NoError(t, err)
	assert.Equal(t, rpc.StartReturn, msg.FrameType)
	assert.Equal(t, uint8(0x77), msg.Nonce)
	assert.Equal(t, payload, msg.Payload)
}
