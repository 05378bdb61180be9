package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	gatt "github.com/XC-/gattserver"
	"github.com/XC-/gattserver/config"
	"github.com/XC-/gattserver/memhost"
	"github.com/XC-/gattserver/service"
	"github.com/XC-/gattserver/shim"
)

func serveCmd(c *cli) *cobra.Command {
	var demo bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Advertise and serve the configured service",
		Example: "  gattd serve --service battery\n" +
			"  gattd serve --host shim --set shim_path=blehostd,shim_args=-d /dev/ttyACM0",
		RunE: func(cmd *cobra.Command, args []string) error {
			if demo && c.cfg.Host != config.HostSim {
				return errors.New("--demo needs the sim host")
			}
			ctx, cancel := signalContext()
			defer cancel()
			return serve(ctx, c.cfg, demo, log.StandardLogger())
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false,
		"connect a simulated central, exercise the service and exit")
	return cmd
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigChan:
			log.WithField("signal", s.String()).Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

// newHost builds the configured host. The returned func releases it.
func newHost(cfg *config.Config, l log.FieldLogger) (gatt.Host, func(), error) {
	switch cfg.Host {
	case config.HostSim:
		h := memhost.New(
			memhost.Capacity(cfg.Capacity),
			memhost.MTU(cfg.MTU),
			memhost.Logger(l),
		)
		return h, func() {}, nil

	case config.HostShim:
		proc, err := shim.Exec(cfg.ShimPath, cfg.ShimArgs...)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "start shim %s", cfg.ShimPath)
		}
		h := shim.New(proc,
			shim.Logger(l),
			shim.Advertising(shim.AdvParams{
				IntervalMin: uint16(cfg.AdvIntervalMin),
				IntervalMax: uint16(cfg.AdvIntervalMax),
				ChannelMap:  uint8(cfg.ChannelMap),
			}),
		)
		return h, func() {
			if err := h.Close(); err != nil {
				l.WithError(err).Debug("shim close")
			}
		}, nil
	}
	return nil, nil, errors.Errorf("unknown host %q", cfg.Host)
}

func serve(ctx context.Context, cfg *config.Config, demo bool, l log.FieldLogger) error {
	srv, err := newServer(cfg)
	if err != nil {
		return err
	}
	adv, scan, err := payloads(cfg.Name, srv.UUID())
	if err != nil {
		return err
	}
	h, release, err := newHost(cfg, l)
	if err != nil {
		return err
	}
	defer release()

	l = l.WithField("service", cfg.Service)
	p, err := gatt.Register(h, srv,
		gatt.Logger(l),
		gatt.MaxConnections(cfg.MaxConnections),
	)
	if err != nil {
		return err
	}
	l.WithFields(log.Fields{
		"name":   cfg.Name,
		"host":   cfg.Host,
		"handle": p.ServiceHandle(),
	}).Info("service registered")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	democ := make(chan error, 1)
	if demo {
		go func() {
			defer cancel()
			democ <- runDemo(ctx, h.(*memhost.Host), srv, l)
		}()
	}

	err = p.AdvertiseAndServe(ctx, adv, scan, handler(p, srv, l))
	if demo {
		if derr := <-democ; derr != nil && errors.Cause(derr) != context.Canceled {
			return derr
		}
	}
	if errors.Cause(err) == context.Canceled {
		return nil
	}
	return err
}

// handler reacts to the events of the known services.
func handler(p *gatt.Peripheral, srv gatt.Server, l log.FieldLogger) gatt.EventHandler {
	return func(c *gatt.Conn, e gatt.Event) {
		l := l.WithField("conn", c.Handle())
		switch e := e.(type) {
		case service.BatteryLevelNotificationsEnabled:
			b := srv.(*service.Battery)
			v, err := b.Level(p)
			if err != nil {
				l.WithError(err).Error("read battery level")
				return
			}
			if err := b.NotifyLevel(p, c, v); err != nil {
				l.WithError(err).Warn("notify battery level")
				return
			}
			l.WithField("level", v).Info("battery level notifications enabled")

		case service.BatteryLevelNotificationsDisabled:
			l.Info("battery level notifications disabled")

		case service.AlertLevelWritten:
			l.WithField("level", e.Level.String()).Info("alert level written")

		default:
			l.WithField("event", e).Debug("unhandled event")
		}
	}
}
