package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/fantap/fantap/internal/config"
	"github.com/fantap/fantap/internal/control"
	"github.com/fantap/fantap/internal/dialer"
	"github.com/fantap/fantap/internal/proxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath    = pflag.String("config", "fantap.yaml", "Path to the YAML proxy map")
		upstream      = pflag.String("upstream", "direct://", "Outbound target dialing: direct:// | socks5://[user:pass@]host:port")
		controlListen = pflag.String("control-listen", "", "Control HTTP listen address (e.g. 127.0.0.1:7070). Empty disables.")
		debugListen   = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")
		dialTimeout   = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
		tcpKeepAlive  = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		startAll      = pflag.Bool("start-all", false, "Start every configured proxy, not just autostart entries")
		verbose       = pflag.Bool("verbose", false, "Enable per-session and per-chunk debug logging")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	d, err := dialer.New(dialer.Config{DialTimeout: *dialTimeout, KeepAlive: ka}, *upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	cfgs, err := config.Load(*configPath, config.Defaults{Dialer: d, KeepAlive: ka})
	if err != nil {
		return err
	}
	if len(cfgs) == 0 {
		return errors.New("no usable proxy entries in config")
	}

	instances := make([]*proxy.Instance, 0, len(cfgs))
	for _, cfg := range cfgs {
		in, err := proxy.NewInstance(cfg)
		if err != nil {
			return fmt.Errorf("proxy %d: %w", cfg.ListenPort, err)
		}
		instances = append(instances, in)
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, in := range instances {
		if !*startAll && !in.AutoStart() {
			continue
		}
		if _, err := in.Start(ctx); err != nil {
			return err
		}
	}

	if *debugListen != "" {
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: ka}
		debugLn, err := lc.Listen(ctx, "tcp", *debugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		logrus.Infof("debug listening on %s", *debugListen)
	}

	if *controlListen != "" {
		lc := net.ListenConfig{KeepAliveConfig: ka}
		ln, err := lc.Listen(ctx, "tcp", *controlListen)
		if err != nil {
			return fmt.Errorf("control listen: %w", err)
		}
		srv := control.New(instances)
		context.AfterFunc(ctx, func() {
			_ = srv.Close()
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil {
				return fmt.Errorf("control serve: %w", err)
			}
			return nil
		})
		logrus.Infof("control listening on %s", *controlListen)
	}

	g.Go(func() error {
		<-ctx.Done()
		for _, in := range instances {
			in.Stop()
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	logrus.Info("shutting down")
	return err
}

// parseTCPKeepAlive parses on|off|keepidle:keepintvl:keepcnt, with the idle
// and interval values in whole seconds.
func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "":
		return net.KeepAliveConfig{}, errors.New("empty")
	case "on":
		return net.KeepAliveConfig{Enable: true}, nil
	case "off":
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}

	vals := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return net.KeepAliveConfig{}, err
		}
		if n <= 0 {
			return net.KeepAliveConfig{}, errors.New("values must be > 0")
		}
		vals[i] = n
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     time.Duration(vals[0]) * time.Second,
		Interval: time.Duration(vals[1]) * time.Second,
		Count:    vals[2],
	}, nil
}
