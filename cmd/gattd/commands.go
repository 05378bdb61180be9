package main

import (
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	gatt "github.com/XC-/gattserver"
	"github.com/XC-/gattserver/config"
	"github.com/XC-/gattserver/service"
)

const version = "0.1.0"

// cli holds the flag values shared by every command.
type cli struct {
	configPath string
	logLevel   string
	overrides  string
	host       string
	service    string

	cfg *config.Config
}

// load builds the effective config: file, then --set, then the
// dedicated flags.
func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Apply(c.overrides); err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("loglevel") {
		cfg.LogLevel = c.logLevel
	}
	if flags.Changed("host") {
		cfg.Host = c.host
	}
	if flags.Changed("service") {
		cfg.Service = c.service
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	lvl, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	log.SetLevel(lvl)
	c.cfg = cfg
	return nil
}

func Commands() *cobra.Command {
	c := new(cli)
	rootCmd := &cobra.Command{
		Use:          "gattd",
		Short:        "gattd serves a GATT service to BLE centrals",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.load(cmd)
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "",
		"config file to use (default ~/"+config.Filename+")")
	rootCmd.PersistentFlags().StringVarP(&c.logLevel, "loglevel", "l", "info",
		"log level to use")
	rootCmd.PersistentFlags().StringVar(&c.overrides, "set", "",
		"comma-separated key=value pairs overriding the config file")
	rootCmd.PersistentFlags().StringVar(&c.host, "host", config.HostSim,
		"host stack to use: sim or shim")
	rootCmd.PersistentFlags().StringVarP(&c.service, "service", "s", "battery",
		"service to serve, one of "+fmt.Sprint(service.Names()))

	versCmd := &cobra.Command{
		Use:     "version",
		Short:   "Display the gattd version number",
		Example: "  gattd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gattd %s\n", version)
		},
	}
	rootCmd.AddCommand(versCmd)
	rootCmd.AddCommand(serveCmd(c))
	rootCmd.AddCommand(advCmd(c))

	return rootCmd
}

func advCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "adv",
		Short: "Print the advertising and scan response payloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newServer(c.cfg)
			if err != nil {
				return err
			}
			adv, scan, err := payloads(c.cfg.Name, srv.UUID())
			if err != nil {
				return err
			}
			fmt.Printf("adv:  %s\n", hex.EncodeToString(adv))
			fmt.Printf("scan: %s\n", hex.EncodeToString(scan))
			return nil
		},
	}
}

// newServer returns the configured service.
func newServer(cfg *config.Config) (gatt.Server, error) {
	srv, ok := service.New(cfg.Service, service.Params{
		DeviceName:   cfg.Name,
		BatteryLevel: cfg.BatteryLevel,
		Appearance:   service.AppearanceGenericTag,
	})
	if !ok {
		return nil, errors.Errorf("unknown service %q; expected one of %v",
			cfg.Service, service.Names())
	}
	return srv, nil
}

// payloads builds the advertising data (flags, service, name) and the
// scan response (service). A name shortened to fit the advertising data
// is sent complete in the scan response instead.
func payloads(name string, u gatt.UUID) (adv, scan []byte, err error) {
	a := new(gatt.AdvPacket)
	if err := a.AppendFlags(gatt.FlagGeneralDiscoverable | gatt.FlagLEOnly); err != nil {
		return nil, nil, err
	}
	if err := a.AppendServices([]gatt.UUID{u}); err != nil {
		return nil, nil, errors.Wrap(err, "advertising data")
	}
	shortened := a.Len()+2+len(name) > gatt.MaxEIRPacketLength
	if err := a.AppendName(name); err != nil {
		return nil, nil, errors.Wrap(err, "advertising data")
	}
	if shortened {
		return a.Bytes(), gatt.NameScanResponsePacket(name), nil
	}

	s := new(gatt.AdvPacket)
	if err := s.AppendServices([]gatt.UUID{u}); err != nil {
		return nil, nil, errors.Wrap(err, "scan response")
	}
	return a.Bytes(), s.Bytes(), nil
}
