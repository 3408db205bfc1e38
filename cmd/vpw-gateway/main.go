package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-vpw-gateway/internal/dash"
	"github.com/kstaniek/go-vpw-gateway/internal/gateway"
	"github.com/kstaniek/go-vpw-gateway/internal/hexline"
	"github.com/kstaniek/go-vpw-gateway/internal/hub"
	"github.com/kstaniek/go-vpw-gateway/internal/j1850"
	"github.com/kstaniek/go-vpw-gateway/internal/metrics"
	"github.com/kstaniek/go-vpw-gateway/internal/server"
	"github.com/kstaniek/go-vpw-gateway/internal/vpw"
)

// onServerReady is called with the bound listen address. Tests replace it.
var onServerReady = func(string) {}

const shutdownGrace = 2 * time.Second

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("vpw-gateway %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	h := initHub(cfg, l)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metrics.RegisterLabels(reasonLabels(), kindLabels())
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}
	if err := run(ctx, cfg, h, l); err != nil {
		l.Error("exit", "error", err)
		stop()
		os.Exit(1)
	}
	l.Info("shutdown_complete")
}

// run wires the bus worker to the TCP server, the console and the
// dashboard, and blocks until ctx is done or a component fails.
func run(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger) error {
	be, err := initBackend(cfg, l)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	defer be.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	var w *gateway.Worker
	send := func(f j1850.Frame) error { return w.Send(f) }

	d := dash.New()
	opts := []gateway.Option{
		gateway.WithLogger(l),
		gateway.WithReceiveWindow(cfg.rxWindow),
		gateway.WithTxQueue(txQueueSize),
		gateway.WithAppendCRC(cfg.appendCRC),
		gateway.WithEchoTx(cfg.echoTx),
		gateway.WithResync(true),
		gateway.WithSink(h.Broadcast),
		gateway.WithSink(func(f j1850.Frame) {
			if r, ok := d.Update(f); ok {
				metrics.IncDashReading(r.Kind.String())
			}
		}),
	}
	var (
		p         *ledPanel
		btn       inPin
		closePins = func() {}
	)
	if cfg.display {
		if p, btn, closePins, err = initDisplay(cfg, l); err != nil {
			return fmt.Errorf("display: %w", err)
		}
	}
	defer closePins()
	var con *console
	if cfg.consoleDev != "" {
		if con, err = initConsole(gctx, cfg, send, l); err != nil {
			return err
		}
		defer con.Close()
		opts = append(opts, gateway.WithSink(con.Echo))
	}
	w = gateway.New(be.bus, append(opts, be.opts...)...)
	g.Go(func() error { return w.Run(gctx) })
	if con != nil {
		g.Go(func() error { return con.Run(gctx) })
	}
	if p != nil {
		g.Go(func() error { return runDisplay(gctx, d, p, btn, cfg.refresh, l) })
	}
	for _, r := range be.runners {
		r := r
		g.Go(func() error { return r(gctx) })
	}

	srvOpts := []server.ServerOption{
		server.WithHub(h),
		server.WithCodec(&hexline.Codec{}),
		server.WithSend(w.Send),
		server.WithLogger(l),
		server.WithListenAddr(cfg.listenAddr),
		server.WithMaxClients(cfg.maxClients),
		server.WithHandshakeTimeout(cfg.handshakeTO),
		server.WithReadDeadline(cfg.clientReadTO),
	}
	if cfg.appendCRC {
		// No room for the CRC byte on a full frame.
		srvOpts = append(srvOpts, server.WithFrameFilter(func(f *j1850.Frame) bool { return f.Len < j1850.MaxFrameLen }))
	}
	srv := server.NewServer(srvOpts...)
	g.Go(func() error { return srv.Serve(gctx) })
	g.Go(func() error { return announce(gctx, cfg, srv, l) })
	g.Go(func() error { return runMetricsLogger(gctx, cfg.logMetricsEvery, l) })

	// Ready when server listener is bound and context not cancelled.
	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return gctx.Err() == nil
	})

	err = g.Wait()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if serr := srv.Shutdown(sctx); serr != nil {
		l.Warn("tcp_shutdown_error", "error", serr)
	}
	return err
}

// announce waits for the listener, then advertises it over mDNS if enabled.
func announce(ctx context.Context, cfg *appConfig, srv *server.Server, l *slog.Logger) error {
	select {
	case <-srv.Ready():
	case <-ctx.Done():
		return nil
	}
	addr := srv.Addr()
	onServerReady(addr)
	if !cfg.mdnsEnable {
		return nil
	}
	port := listenPort(addr)
	cleanupMDNS, err := startMDNS(ctx, cfg, port)
	if err != nil {
		l.Warn("mdns_start_failed", "error", err)
		return nil
	}
	l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", port)
	<-ctx.Done()
	cleanupMDNS()
	return nil
}

// listenPort extracts the port from host:port or :port. It returns 0 when
// addr has no numeric port.
func listenPort(addr string) int {
	if _, p, err := net.SplitHostPort(addr); err == nil {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	return 0
}

func reasonLabels() []string {
	var out []string
	for _, r := range vpw.Reasons() {
		out = append(out, r.String())
	}
	return out
}

func kindLabels() []string {
	var out []string
	for _, k := range dash.Kinds() {
		out = append(out, k.String())
	}
	return out
}
