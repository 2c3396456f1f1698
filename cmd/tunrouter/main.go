// Command tunrouter is the process bootstrap for the L3 tunnel router:
// CLI flag parsing, TUN/TCP collaborator wiring, and the supervisory loop
// around the forwarding engine in internal/router.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/l3router/tunrouter/internal/httpapi"
	"github.com/l3router/tunrouter/internal/rlog"
	"github.com/l3router/tunrouter/internal/rmetrics"
	"github.com/l3router/tunrouter/internal/router"
	"github.com/l3router/tunrouter/internal/routepolicy"
	"github.com/l3router/tunrouter/internal/tcplisten"
	"github.com/l3router/tunrouter/internal/tundev"
)

func main() {
	app := cli.NewApp()
	app.Name = "tunrouter"
	app.Usage = "minimal L3 (IPv4) user-space tunnel router"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "netmask", Usage: "TUN interface netmask"},
		cli.StringFlag{Name: "address", Usage: "TUN interface IPv4 address"},
		cli.StringFlag{Name: "device", Value: "tun0", Usage: "TUN device name"},
		cli.IntFlag{Name: "port", Value: 8080, Usage: "TCP listen port"},
		cli.StringFlag{Name: "connect", Usage: "remote IPv4 to dial (client mode)"},
		cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, error"},
		cli.StringFlag{Name: "metrics-listen", Value: ":9090", Usage: "health/metrics HTTP listen address"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "tunrouter:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log, err := rlog.New(c.String("log-level"))
	if err != nil {
		return err
	}
	defer log.Sync()

	if c.String("address") == "" || c.String("netmask") == "" {
		return cli.NewExitError("--address and --netmask are required", 1)
	}

	rmetrics.Register()

	r, err := router.New(64, 100*time.Millisecond, log)
	if err != nil {
		return err
	}
	defer r.Close()

	table := routepolicy.NewStaticTable(r, log)

	tun, err := tundev.Open(tundev.Config{
		Name:    c.String("device"),
		Address: net.ParseIP(c.String("address")),
		Netmask: net.ParseIP(c.String("netmask")),
	})
	if err != nil {
		return fmt.Errorf("bringing up TUN device: %w", err)
	}
	tunPeer := router.NewL3Peer(tun.Fd, router.Addr{}, log)
	if err := r.Register(tunPeer, 0); err != nil {
		return fmt.Errorf("registering TUN peer: %w", err)
	}
	log.Info("TUN device up", zap.String("name", tun.Name))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsSrv := httpapi.New(c.String("metrics-listen"), nil, log)
	if err := metricsSrv.Start(); err != nil {
		return fmt.Errorf("starting metrics server: %w", err)
	}

	if connect := c.String("connect"); connect != "" {
		if err := connectRemote(connect, c.Int("port"), r, table, log); err != nil {
			return fmt.Errorf("connecting to remote: %w", err)
		}
	} else {
		ln, err := tcplisten.Listen(fmt.Sprintf(":%d", c.Int("port")), r, table, log)
		if err != nil {
			return fmt.Errorf("starting TCP listener: %w", err)
		}
		defer ln.Close()
		go func() {
			if err := ln.Serve(ctx); err != nil {
				log.Error("tcp listener stopped", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			log.Info("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = metricsSrv.Shutdown(shutdownCtx)
			shutdownCancel()
			return nil
		default:
		}

		if err := r.Run(); err != nil {
			if errors.Is(err, router.ErrInterrupted) {
				log.Info("router interrupted, shutting down")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = metricsSrv.Shutdown(shutdownCtx)
				shutdownCancel()
				return nil
			}
			log.Error("router tick ended in error", zap.Error(err))
			// Interrupted is the only Run result that ends this loop;
			// NoHandler and Resources are logged and the loop re-enters
			// on the next iteration.
		}
	}
}

func connectRemote(remote string, port int, r *router.Router, table *routepolicy.StaticTable, log *zap.Logger) error {
	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", remote, port))
	if err != nil {
		return err
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return fmt.Errorf("unexpected connection type for %s", remote)
	}
	raw, err := tcpConn.SyscallConn()
	if err != nil {
		conn.Close()
		return err
	}
	var fd int
	var dupErr error
	_ = raw.Control(func(sysfd uintptr) {
		fd, dupErr = syscall.Dup(int(sysfd))
	})
	conn.Close()
	if dupErr != nil {
		return dupErr
	}

	addr := router.Addr{}
	peer := router.NewL3Peer(fd, addr, log)
	if err := r.Register(peer, 0); err != nil {
		syscall.Close(fd)
		return err
	}
	if ip := net.ParseIP(remote); ip != nil {
		table.Add(ip, fd)
	}
	log.Info("connected to remote", zap.String("peer", peer.String()))
	return nil
}
