// ABOUTME: Tests for the watch command against an in-test broker gRPC server
// ABOUTME: Verifies the printed state lines and a clean end of stream

package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/rpc"
)

// scriptedBroker answers AddClient with a fixed series of states.
type scriptedBroker struct {
	rpc.UnimplementedBrokerServer
	states []a11y.ClientState
	userID chan int
}

func (b *scriptedBroker) AddClient(req *rpc.AddClientRequest, stream rpc.Broker_AddClientServer) error {
	b.userID <- req.UserID
	for _, s := range b.states {
		if err := stream.Send(rpc.FromClientState(s)); err != nil {
			return err
		}
	}
	return nil
}

func TestRunWatch(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	broker := &scriptedBroker{
		states: []a11y.ClientState{0, a11y.StateAccessibilityEnabled | a11y.StateTouchExplorationEnabled},
		userID: make(chan int, 1),
	}
	rpc.RegisterBrokerServer(srv, broker)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	content := fmt.Sprintf("server:\n  grpc_addr: %q\ndatabase:\n  path: \":memory:\"\n", lis.Addr().String())
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	var out bytes.Buffer
	require.NoError(t, runWatch(context.Background(), path, &out))

	assert.Equal(t, a11y.UserCurrent, <-broker.userID)
	assert.Equal(t,
		"accessibility=off touch_exploration=off\naccessibility=on touch_exploration=on\n",
		out.String())
}
