// ABOUTME: watch command streaming client state changes from the broker gRPC service
// ABOUTME: Prints one line per state until interrupted or the gateway goes away

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/config"
	"github.com/2389/a11y-gateway/internal/rpc"
)

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func runWatch(ctx context.Context, configPath string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	conn, err := grpc.NewClient(cfg.Server.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dialing gateway: %w", err)
	}
	defer conn.Close()

	stream, err := rpc.NewBrokerClient(conn).AddClient(ctx, &rpc.AddClientRequest{UserID: a11y.UserCurrent})
	if err != nil {
		return fmt.Errorf("registering state client: %w", err)
	}

	for {
		update, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("watching state: %w", err)
		}
		_, err = fmt.Fprintf(out, "accessibility=%s touch_exploration=%s\n",
			onOff(update.AccessibilityEnabled), onOff(update.TouchExplorationEnabled))
		if err != nil {
			return err
		}
	}
}
