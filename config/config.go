// Package config holds the gattd settings: a YAML file, overridden by
// comma-separated key=value pairs from the command line, and checked by
// Validate before any host is built from it.
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v2"
)

// Filename is the name of the config file in the user's home directory.
const Filename = ".gattd.yml"

// Host types.
const (
	HostSim  = "sim"
	HostShim = "shim"
)

// Limits enforced by Validate.
const (
	MaxNameLen        = 29 // a complete-name AD record in a 31 byte payload
	MaxConnectionsCap = 20
	MinMTU            = 23
	MaxMTU            = 517
	MaxCapacity       = 0xFFFF // attribute handles 0x0001..0xFFFF
	MinAdvInterval    = 0x0020 // 20 ms in 0.625 ms units
	MaxAdvInterval    = 0x4000 // 10.24 s
	ChannelMapAll     = 0x07   // channels 37, 38 and 39
)

type Config struct {
	Name           string   `yaml:"name"`
	Host           string   `yaml:"host"`
	ShimPath       string   `yaml:"shim_path"`
	ShimArgs       []string `yaml:"shim_args"`
	Service        string   `yaml:"service"`
	BatteryLevel   uint8    `yaml:"battery_level"`
	MaxConnections int      `yaml:"max_connections"`
	MTU            int      `yaml:"att_mtu"`
	Capacity       int      `yaml:"attr_capacity"`
	AdvIntervalMin int      `yaml:"adv_interval_min"`
	AdvIntervalMax int      `yaml:"adv_interval_max"`
	ChannelMap     int      `yaml:"channel_map"`
	LogLevel       string   `yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Name:           "gattd",
		Host:           HostSim,
		Service:        "battery",
		BatteryLevel:   100,
		MaxConnections: 3,
		MTU:            128,
		Capacity:       256,
		AdvIntervalMin: 0x00A0,
		AdvIntervalMax: 0x00F0,
		ChannelMap:     ChannelMapAll,
		LogLevel:       "info",
	}
}

// DefaultPath returns the config file in the user's home directory.
func DefaultPath() (string, error) {
	dir, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "locate home directory")
	}
	return filepath.Join(dir, Filename), nil
}

// Load reads the config at path over the defaults. An empty path means
// DefaultPath, which need not exist.
func Load(path string) (*Config, error) {
	c := Default()
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	blob, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return c, nil
		}
		return nil, errors.Wrap(err, "read config")
	}
	if err := yaml.UnmarshalStrict(blob, c); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return c, nil
}

// ParseOverrides splits "k=v,k=v" into a map.
func ParseOverrides(s string) (map[string]string, error) {
	kvs := map[string]string{}
	if strings.TrimSpace(s) == "" {
		return kvs, nil
	}
	for _, p := range strings.Split(s, ",") {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, errors.Errorf("invalid override; expected comma-separated "+
				"key=value pairs; no '=' in: %s", p)
		}
		kvs[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return kvs, nil
}

// Apply parses s with ParseOverrides and sets each key.
func (c *Config) Apply(s string) error {
	kvs, err := ParseOverrides(s)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(kvs))
	for k := range kvs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := c.Set(k, kvs[k]); err != nil {
			return err
		}
	}
	return nil
}

// Set sets one setting by its YAML key. Numbers may be given in
// decimal or with a 0x prefix.
func (c *Config) Set(k, v string) error {
	toInt := func() (int, error) {
		n, err := cast.ToIntE(v)
		if err != nil {
			return 0, errors.Errorf("invalid %s: %s", k, v)
		}
		return n, nil
	}

	var err error
	switch k {
	case "name":
		c.Name = v
	case "host":
		c.Host = v
	case "shim_path":
		c.ShimPath = v
	case "shim_args":
		c.ShimArgs, err = cast.ToStringSliceE(v)
	case "service":
		c.Service = v
	case "battery_level":
		var n int
		if n, err = toInt(); err == nil {
			if n < 0 || n > 0xFF {
				return errors.Errorf("invalid %s: %s", k, v)
			}
			c.BatteryLevel = uint8(n)
		}
	case "max_connections":
		c.MaxConnections, err = toInt()
	case "att_mtu":
		c.MTU, err = toInt()
	case "attr_capacity":
		c.Capacity, err = toInt()
	case "adv_interval_min":
		c.AdvIntervalMin, err = toInt()
	case "adv_interval_max":
		c.AdvIntervalMax, err = toInt()
	case "channel_map":
		c.ChannelMap, err = toInt()
	case "log_level":
		c.LogLevel = v
	default:
		return errors.Errorf("unrecognized key: %s", k)
	}
	return err
}

// A ValidationError names the setting that failed Validate.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Key, e.Reason)
}

func invalid(key, f string, args ...interface{}) error {
	return &ValidationError{Key: key, Reason: fmt.Sprintf(f, args...)}
}

// Validate checks every setting; it returns the first failure as a
// *ValidationError.
func (c *Config) Validate() error {
	switch {
	case len(c.Name) < 1 || len(c.Name) > MaxNameLen:
		return invalid("name", "must be 1..%d bytes, is %d", MaxNameLen, len(c.Name))
	case c.Host != HostSim && c.Host != HostShim:
		return invalid("host", "must be %q or %q, is %q", HostSim, HostShim, c.Host)
	case c.Host == HostShim && c.ShimPath == "":
		return invalid("shim_path", "is required for host %q", HostShim)
	case c.MaxConnections < 1 || c.MaxConnections > MaxConnectionsCap:
		return invalid("max_connections", "must be 1..%d, is %d", MaxConnectionsCap, c.MaxConnections)
	case c.MTU < MinMTU || c.MTU > MaxMTU:
		return invalid("att_mtu", "must be %d..%d, is %d", MinMTU, MaxMTU, c.MTU)
	case c.Capacity < 1 || c.Capacity > MaxCapacity:
		return invalid("attr_capacity", "must be 1..%d, is %d", MaxCapacity, c.Capacity)
	case c.AdvIntervalMin < MinAdvInterval || c.AdvIntervalMin > MaxAdvInterval:
		return invalid("adv_interval_min", "must be 0x%04x..0x%04x, is 0x%04x",
			MinAdvInterval, MaxAdvInterval, c.AdvIntervalMin)
	case c.AdvIntervalMax < MinAdvInterval || c.AdvIntervalMax > MaxAdvInterval:
		return invalid("adv_interval_max", "must be 0x%04x..0x%04x, is 0x%04x",
			MinAdvInterval, MaxAdvInterval, c.AdvIntervalMax)
	case c.AdvIntervalMin > c.AdvIntervalMax:
		return invalid("adv_interval_min", "exceeds adv_interval_max")
	case c.ChannelMap == 0 || c.ChannelMap&^ChannelMapAll != 0:
		return invalid("channel_map", "must set only bits 0..2, is 0x%02x", c.ChannelMap)
	}
	return nil
}
