// Command railserver runs the authoritative side of a room: it accepts
// raknet connections, ticks the ServerRoom at railconfig.TickInterval, and
// serves prometheus metrics. Adapted from the teacher's core/main.go
// (banner, config load, graceful shutdown on SIGINT/SIGTERM) into a cobra
// command, routed through errgroup so the tick pump, metrics server, and
// listener all unwind together on shutdown.
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
	"github.com/araex/railgunnet-go/internal/railtransport"
	"github.com/araex/railgunnet-go/pkg/raknet"
)

const version = "0.1.0"

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "railserver",
		Short: "Run the authoritative railgunnet room server",
		RunE:  runServer,
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a railgunnet config file")
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	raillog.Banner("RailgunNet Server", version)

	shell, err := railconfig.Load(configPath)
	if err != nil {
		return err
	}
	log, err := raillog.New(shell.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Success("configuration loaded", zap.String("server_name", shell.ServerName), zap.String("listen_addr", shell.ListenAddr))

	registry := buildRegistry(log)
	server := railroom.NewServer(registry, log)
	room := server.StartRoom()

	peerCount := 0
	controlled := make(map[railentity.PeerId]railstate.EntityId)
	room.ClientJoined = func(peer railentity.PeerId, identifier string) {
		peerCount++
		log.Info("client joined", zap.String("identifier", identifier))

		id, err := railroom.AddNewEntity[schema.PlayerState, schema.MoveCommand](
			room, schema.PlayerSchema{}, railentity.Normal,
			schema.NewPlayerServerHooks(log),
			&schema.PlayerState{Name: identifier, Health: 100},
			railconfig.DejitterBufferLength,
		)
		if err != nil {
			log.Warn("failed to spawn player entity", zap.String("identifier", identifier), zap.Error(err))
			return
		}
		if err := room.SetController(id, peer); err != nil {
			log.Warn("failed to assign controller", zap.Error(err))
		}
		controlled[peer] = id
	}
	room.ClientLeft = func(peer railentity.PeerId, identifier string) {
		peerCount--
		log.Info("client left", zap.String("identifier", identifier))
		if id, ok := controlled[peer]; ok {
			room.MarkForRemoval(id)
			delete(controlled, peer)
		}
	}

	collector := railmetrics.New(prometheus.Labels{"server_name": shell.ServerName})
	prometheus.MustRegister(collector)
	room.SetMetrics(collector)

	listener, err := raknet.Listen(shell.ListenAddr, func(conn *raknet.Conn, inbox *railtransport.Inbox, identifier string) {
		server.AddClient(conn, inbox, identifier)
	})
	if err != nil {
		return err
	}
	log.Info("listening", zap.String("addr", listener.Addr()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return listener.Start()
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

	group.Go(func() error {
		ticker := time.NewTicker(railconfig.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				server.Update()
				collector.SetRoomCounts(shell.ServerName, len(room.Entities()), peerCount)
			}
		}
	})

	<-ctx.Done()
	log.Warn("shutting down gracefully")
	_ = listener.Close()

	if err := group.Wait(); err != nil {
		log.Error("server error", zap.Error(err))
		return err
	}
	log.Success("server stopped")
	return nil
}

// buildRegistry wires this room's type catalog: one shared command type and
// the two reference entity schemas from examples/schema (spec.md §6's
// AddEntityType/SetCommandType/AddEventType). The registered ClientHooks
// factories are only ever invoked by a process acting as a client; a
// railserver process never spawns a ClientEntity itself, but AddEntityType
// still requires one since the same registry shape serves both roles.
func buildRegistry(log *raillog.Logger) *railroom.Registry {
	registry := railroom.NewRegistry()
	railroom.SetCommandType[schema.MoveCommand](registry, schema.MoveCommandSchema{})

	railroom.AddEntityType[schema.PlayerState, schema.MoveCommand](
		registry, schema.PlayerSchema{}, railentity.Normal,
		func(id railstate.EntityId) railentity.ClientHooks[schema.PlayerState, schema.MoveCommand] {
			return schema.NewPlayerClientHooks(log, nil)
		},
		railconfig.DejitterBufferLength, railconfig.CommandBufferCount,
	)
	railroom.AddEntityType[schema.VehicleState, schema.MoveCommand](
		registry, schema.VehicleSchema{}, railentity.Early,
		func(id railstate.EntityId) railentity.ClientHooks[schema.VehicleState, schema.MoveCommand] {
			return schema.NewVehicleClientHooks(log, nil)
		},
		railconfig.DejitterBufferLength, railconfig.CommandBufferCount,
	)
	railroom.AddEventType(registry, schema.ChatEventTypeId, func() railpeer.Event { return &schema.ChatEvent{} })
	return registry
}
