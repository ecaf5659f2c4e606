package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mezonai/custody/events"
	"github.com/mezonai/custody/exception"
	"github.com/mezonai/custody/jsonrpc"
	"github.com/mezonai/custody/logx"
	"github.com/mezonai/custody/monitoring"
	"github.com/mezonai/custody/ratelimit"
	"github.com/spf13/cobra"
)

var serveListenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the programs over JSON-RPC with prometheus metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := setup()
		if err != nil {
			return err
		}
		defer p.Close()
		monitoring.InitMetrics()

		addr := p.cfg.RPC.ListenAddr
		if serveListenAddr != "" {
			addr = serveListenAddr
		}
		srv := jsonrpc.NewServer(addr, p.engine, p.vault, p.ledger, p.assets, p.cfg.Profile().String())
		if err := srv.SetTrustedProxies(p.cfg.RPC.TrustedProxies); err != nil {
			return err
		}
		if corsCfg, ok := jsonrpc.CORSFromEnv(); ok {
			srv.SetCORSConfig(corsCfg)
		}
		if limit := p.cfg.RPC.RateLimit; limit > 0 {
			rl := ratelimit.DefaultConfig()
			rl.MaxRequests = limit
			srv.SetRateLimiter(ratelimit.NewRateLimiter(rl))
		}

		stopEvents := startEventLog(p.bus)
		defer stopEvents()

		if err := srv.Start(); err != nil {
			return err
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logx.Info("CMD", "Shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListenAddr, "listen", "", "Override [rpc] listen_addr")
}

// startEventLog logs every published event from a channel subscriber, and warns
// synchronously on admin changes
func startEventLog(bus *events.EventBus) func() {
	router := events.NewEventRouter(bus)
	router.On(events.TopicSetAdmin, func(ctx context.Context, ev events.Event) {
		logx.Warn("EVENTS", fmt.Sprintf("Admin changed | program=%s | admin=%s", ev.Program, ev.Field("admin")))
	})

	id, ch := bus.Subscribe()
	exception.SafeGo("EventLog", func() {
		for ev := range ch {
			logx.Info("EVENTS", fmt.Sprintf("%s | program=%s | amount=%d | fields=%v", ev.Topic, ev.Program, ev.Amount, ev.Fields))
		}
	})
	return func() {
		bus.Unsubscribe(id)
	}
}
