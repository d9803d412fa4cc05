// Command railclient connects to a railserver, runs the predicted/proxy
// ClientRoom at railconfig.TickInterval, and logs reliable events it
// receives. Adapted from the teacher's core/main.go entrypoint shape
// (banner, config load, graceful shutdown) into a cobra command.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/araex/railgunnet-go/examples/schema"
	"github.com/araex/railgunnet-go/internal/railconfig"
	"github.com/araex/railgunnet-go/internal/railentity"
	"github.com/araex/railgunnet-go/internal/raillog"
	"github.com/araex/railgunnet-go/internal/railmetrics"
	"github.com/araex/railgunnet-go/internal/railpeer"
	"github.com/araex/railgunnet-go/internal/railroom"
	"github.com/araex/railgunnet-go/internal/railstate"
	"github.com/araex/railgunnet-go/pkg/raknet"
)

const version = "0.1.0"

var (
	configPath string
	serverAddr string
)

func main() {
	root := &cobra.Command{
		Use:   "railclient",
		Short: "Connect to a railgunnet room server",
		RunE:  runClient,
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a railgunnet config file")
	root.Flags().StringVar(&serverAddr, "connect", "127.0.0.1:7777", "server address to dial")
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	raillog.Banner("RailgunNet Client", version)

	shell, err := railconfig.Load(configPath)
	if err != nil {
		return err
	}
	log, err := raillog.New(shell.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	conn, inbox, err := raknet.Dial(serverAddr)
	if err != nil {
		return err
	}
	log.Success("connected", zap.String("addr", serverAddr))

	registry := buildRegistry(log)
	client := railroom.NewClient(registry, log)
	client.SetPeer(conn, inbox)
	room := client.StartRoom()
	room.EventReceived = func(event railpeer.Event) {
		if chat, ok := event.(*schema.ChatEvent); ok {
			log.Info("chat", zap.Uint16("from", uint16(chat.From)), zap.String("message", chat.Message))
		}
	}

	collector := railmetrics.New(prometheus.Labels{"server_name": shell.ServerName})
	prometheus.MustRegister(collector)
	room.SetMetrics(collector)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		ticker := time.NewTicker(railconfig.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				client.Update()
				collector.SetRoomCounts(shell.ServerName, len(room.Entities()), 1)
			}
		}
	})

	group.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		httpServer := &http.Server{Addr: shell.MetricsAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() { errCh <- httpServer.ListenAndServe() }()
		select {
		case <-gctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		}
	})

	<-ctx.Done()
	log.Warn("shutting down gracefully")
	_ = conn.Close()
	_ = group.Wait()
	log.Success("client stopped")
	return nil
}

// staticForwardInput is a placeholder MoveCommand source: a real client
// replaces this with an actual input-polling function (keyboard, gamepad).
// Kept constant here so the room's ApplyControl/prediction path has a
// nonzero command to replay.
func staticForwardInput() schema.MoveCommand {
	return schema.MoveCommand{MoveX: 1000, MoveY: 0}
}

// buildRegistry mirrors cmd/railserver's catalog: the same schema/command/
// event types must be registered identically on both sides of a connection,
// since FactoryType/EventTypeId values are exchanged on the wire, not names.
func buildRegistry(log *raillog.Logger) *railroom.Registry {
	registry := railroom.NewRegistry()
	railroom.SetCommandType[schema.MoveCommand](registry, schema.MoveCommandSchema{})

	railroom.AddEntityType[schema.PlayerState, schema.MoveCommand](
		registry, schema.PlayerSchema{}, railentity.Normal,
		func(id railstate.EntityId) railentity.ClientHooks[schema.PlayerState, schema.MoveCommand] {
			return schema.NewPlayerClientHooks(log, staticForwardInput)
		},
		railconfig.DejitterBufferLength, railconfig.CommandBufferCount,
	)
	railroom.AddEntityType[schema.VehicleState, schema.MoveCommand](
		registry, schema.VehicleSchema{}, railentity.Early,
		func(id railstate.EntityId) railentity.ClientHooks[schema.VehicleState, schema.MoveCommand] {
			return schema.NewVehicleClientHooks(log, staticForwardInput)
		},
		railconfig.DejitterBufferLength, railconfig.CommandBufferCount,
	)
	railroom.AddEventType(registry, schema.ChatEventTypeId, func() railpeer.Event { return &schema.ChatEvent{} })
	return registry
}
