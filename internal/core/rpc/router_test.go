package rpc

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zeusrpc/internal/core/observability/log"
	"github.com/zeusync/zeusrpc/internal/core/wire"
	"github.com/zeusync/zeusrpc/pkg/concurrent"
)

func inlineExecutor(submitted *atomic.Int32) concurrent.Executor {
	return concurrent.ExecutorFunc(func(task func()) error {
		submitted.Add(1)
		task()
		return nil
	})
}

func newTestRouter(t *testing.T, executor concurrent.Executor) (*Router, *Provider) {
	t.Helper()
	provider := NewProvider()
	require.NoError(t, provider.Handle("Echo", testCode, func(_ context.Context, payload []byte) ([]byte, error) {
		return []byte(strings.ToUpper(string(payload))), nil
	}))
	require.NoError(t, provider.Handle("Echo", testCode+1, func(context.Context, []byte) ([]byte, error) {
		return nil, errors.New("session expired")
	}))
	return NewRouter(context.Background(), provider, executor, log.NewNop()), provider
}

func TestRouter_PassivePingReply(t *testing.T) {
	var submitted atomic.Int32
	router, _ := newTestRouter(t, inlineExecutor(&submitted))
	conn := newAcceptedConn()

	router.OnData(conn, wire.Packet{Type: wire.CodePing, CorrelationID: 42})

	sent := conn.packets()
	require.Len(t, sent, 1)
	assert.Equal(t, wire.CodePong, sent[0].Type)
	assert.EqualValues(t, 42, sent[0].CorrelationID)
	assert.Empty(t, sent[0].Payload)
	assert.Zero(t, submitted.Load())
}

func TestRouter_DispatchRespondsWithCorrelationID(t *testing.T) {
	var submitted atomic.Int32
	router, _ := newTestRouter(t, inlineExecutor(&submitted))
	conn := newAcceptedConn()

	router.OnData(conn, wire.Packet{Type: testCode, CorrelationID: 99, Payload: []byte("abc")})

	sent := conn.packets()
	require.Len(t, sent, 1)
	assert.Equal(t, testCode, sent[0].Type)
	assert.EqualValues(t, 99, sent[0].CorrelationID)
	assert.Equal(t, []byte("ABC"), sent[0].Payload)
	assert.EqualValues(t, 1, submitted.Load())
}

func TestRouter_HandlerErrorBecomesFault(t *testing.T) {
	var submitted atomic.Int32
	router, _ := newTestRouter(t, inlineExecutor(&submitted))
	conn := newAcceptedConn()

	router.OnData(conn, wire.Packet{Type: testCode + 1, CorrelationID: 5})
	router.OnData(conn, wire.Packet{Type: 77, CorrelationID: 6})

	sent := conn.packets()
	require.Len(t, sent, 2)
	assert.Equal(t, FaultCode(testCode+1), sent[0].Type)
	assert.Equal(t, "session expired", string(sent[0].Payload))
	assert.Equal(t, FaultCode(77), sent[1].Type)
	assert.EqualValues(t, 6, sent[1].CorrelationID)
	assert.Contains(t, string(sent[1].Payload), ErrNoHandler.Error())
}

func TestRouter_RejectedRequestIsDropped(t *testing.T) {
	executor := concurrent.ExecutorFunc(func(func()) error { return concurrent.ErrPoolFull })
	router, _ := newTestRouter(t, executor)
	conn := newAcceptedConn()

	router.OnData(conn, wire.Packet{Type: testCode, CorrelationID: 1})

	assert.Empty(t, conn.packets())
	assert.False(t, conn.IsClosed())
}

func TestRouter_PongOnAcceptedConnectionIgnored(t *testing.T) {
	var submitted atomic.Int32
	router, _ := newTestRouter(t, inlineExecutor(&submitted))
	conn := newAcceptedConn()

	router.OnData(conn, wire.Packet{Type: wire.CodePong, CorrelationID: 1})

	assert.Empty(t, conn.packets())
	assert.Zero(t, submitted.Load())
}

func TestRouter_ResponseSizeMismatchIsNotFatal(t *testing.T) {
	var submitted atomic.Int32
	router, _ := newTestRouter(t, inlineExecutor(&submitted))
	conn := newAcceptedConn()
	require.NoError(t, conn.Close())

	assert.NotPanics(t, func() {
		router.OnData(conn, wire.Packet{Type: testCode, CorrelationID: 3, Payload: []byte("x")})
	})
	assert.EqualValues(t, 1, submitted.Load())
}

func TestProvider_HandleValidation(t *testing.T) {
	p := NewProvider()
	noop := func(context.Context, []byte) ([]byte, error) { return nil, nil }

	assert.ErrorIs(t, p.Handle("X", wire.CodePing, noop), ErrInvalidCode)
	assert.ErrorIs(t, p.Handle("X", wire.CodePong, noop), ErrInvalidCode)
	assert.ErrorIs(t, p.Handle("X", 0, noop), ErrInvalidCode)
	require.NoError(t, p.Handle("X", 20, noop))
	require.NoError(t, p.Handle("X", 3, noop))
	assert.ErrorIs(t, p.Handle("Y", 20, noop), ErrDuplicateHandler)
	assert.Equal(t, []int32{3, 20}, p.Codes())
}
