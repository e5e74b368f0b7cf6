/* Copyright (c) 2025 Waldemar Augustyn */

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const ddir = "/var/lib/meshpathd"

// Config covers every option enumerated in spec §6, loaded from a YAML
// file via viper (grounded on urands-ttmesh's pkg/config/config.go
// mapstructure pattern) with a handful of flag overrides for the options
// an operator most often wants to set at the command line (grounded on
// the teacher's cli.go flag definitions and fatal-on-invalid validation
// style).
type Config struct {
	NodeAddr   string `mapstructure:"node_addr"`
	ElementTTL uint8  `mapstructure:"element_ttl"`
	IsRoot     bool   `mapstructure:"is_root"`

	ActivePathTimeout time.Duration `mapstructure:"active_path_timeout"`
	RootPannInterval  time.Duration `mapstructure:"root_pann_interval"`

	MonitoredInterface   string        `mapstructure:"monitored_interface"`
	MeshInterface        string        `mapstructure:"mesh_interface"`
	MonitoredAddresses   []string      `mapstructure:"monitored_addresses"`
	MonitorInterval      time.Duration `mapstructure:"monitor_interval"`
	MonitorSocketTimeout time.Duration `mapstructure:"monitor_socket_timeout"`
	Robustness           int           `mapstructure:"robustness"`

	Penalty          float64       `mapstructure:"penalty"`
	SuppressLimit    float64       `mapstructure:"suppress_limit"`
	ReuseLimit       float64       `mapstructure:"reuse_limit"`
	HalfLife         time.Duration `mapstructure:"half_life"`
	MaxSuppressLimit float64       `mapstructure:"max_suppress_limit"`

	SetRootModeIfGate uint8 `mapstructure:"set_root_mode_if_gate"`

	DataDir string `mapstructure:"data_dir"`

	// derived, not read from file/flags directly
	nodeAddr MAC
}

func defaultConfig() *Config {
	return &Config{
		ElementTTL:           31,
		ActivePathTimeout:    30 * time.Second,
		RootPannInterval:     5 * time.Second,
		MonitorInterval:      10 * time.Second,
		MonitorSocketTimeout: 3 * time.Second,
		Robustness:           3,
		Penalty:              1000,
		SuppressLimit:        2000,
		ReuseLimit:           500,
		HalfLife:             300 * time.Second,
		MaxSuppressLimit:     20000,
		DataDir:              ddir,
	}
}

var cli struct { // command-line overrides, parsed once, never modified thereafter
	configPath string
	nodeAddr   string
	debuglist  string
	trace      bool
	stamps     bool
	// derived
	debug     map[string]bool
	log_level uint
}

// parse_cli parses flag overrides and loads/validates the full
// configuration, in the same order the teacher's parse_cli initializes
// logging first, then everything else.
func parse_cli() *Config {

	flag.StringVar(&cli.configPath, "config", "", "path to YAML configuration file")
	flag.StringVar(&cli.nodeAddr, "node-addr", "", "override node MAC address")
	flag.StringVar(&cli.debuglist, "debug", "", "enable debug in listed files, comma separated")
	flag.BoolVar(&cli.trace, "trace", false, "enable packet trace")
	flag.BoolVar(&cli.stamps, "time-stamps", false, "print logs with time stamps")
	flag.Usage = func() {
		toks := strings.Split(os.Args[0], "/")
		prog := toks[len(toks)-1]
		fmt.Println("Userspace routing and gateway-connectivity daemon for an 802.11s mesh.")
		fmt.Println("")
		fmt.Println("   ", prog, "[FLAGS]")
		fmt.Println("")
		flag.PrintDefaults()
	}
	flag.Parse()

	cli.debug = make(map[string]bool)
	for _, fname := range strings.Split(cli.debuglist, ",") {
		if len(fname) == 0 {
			continue
		}
		bix := 0
		eix := len(fname)
		if ix := strings.LastIndex(fname, "/"); ix >= 0 {
			bix = ix + 1
		}
		if ix := strings.LastIndex(fname, "."); ix >= 0 {
			eix = ix
		}
		cli.debug[fname[bix:eix]] = true
	}

	if cli.trace {
		cli.log_level = TRACE
	} else {
		cli.log_level = INFO
	}
	log.set(cli.log_level, cli.stamps)

	cfg, err := loadConfig(cli.configPath)
	if err != nil {
		log.fatal("config: %v", err)
	}

	if cli.nodeAddr != "" {
		cfg.NodeAddr = cli.nodeAddr
	}

	if err := cfg.validate(); err != nil {
		log.fatal("config: %v", err)
	}

	return cfg
}

// loadConfig reads defaults, then overlays a YAML file if path is
// non-empty (grounded on urands-ttmesh's Load(path)).
func loadConfig(path string) (*Config, error) {

	cfg := defaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %v: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {

	if c.NodeAddr == "" {
		return fmt.Errorf("%w: missing node address (try -node-addr)", ErrConfig)
	}
	mac, err := ParseMAC(c.NodeAddr)
	if err != nil {
		return fmt.Errorf("%w: invalid node address %q: %v", ErrConfig, c.NodeAddr, err)
	}
	c.nodeAddr = mac

	if c.MonitoredInterface == "" {
		return fmt.Errorf("%w: missing monitored_interface", ErrConfig)
	}
	if c.MeshInterface == "" {
		return fmt.Errorf("%w: missing mesh_interface", ErrConfig)
	}
	if c.MeshInterface == c.MonitoredInterface {
		return fmt.Errorf("%w: mesh_interface and monitored_interface must differ (WAN probe interface cannot double as the mesh L2 transport)", ErrConfig)
	}
	if len(c.MonitoredAddresses) == 0 {
		return fmt.Errorf("%w: missing monitored_addresses", ErrConfig)
	}
	if c.Robustness < 1 {
		return fmt.Errorf("%w: robustness must be >= 1", ErrConfig)
	}
	if c.ActivePathTimeout <= 0 {
		return fmt.Errorf("%w: active_path_timeout must be positive", ErrConfig)
	}
	if c.RootPannInterval <= 0 {
		return fmt.Errorf("%w: root_pann_interval must be positive", ErrConfig)
	}

	dampenerCfg := DampenerConfig{
		Penalty:          c.Penalty,
		SuppressLimit:    c.SuppressLimit,
		ReuseLimit:       c.ReuseLimit,
		HalfLife:         c.HalfLife,
		MaxSuppressLimit: c.MaxSuppressLimit,
	}
	if err := dampenerCfg.validate(); err != nil {
		return err
	}

	c.DataDir, err = filepath.Abs(c.DataDir)
	if err != nil {
		return fmt.Errorf("%w: invalid data_dir: %v", ErrConfig, err)
	}

	return nil
}

func (c *Config) dampenerConfig() DampenerConfig {
	return DampenerConfig{
		Penalty:          c.Penalty,
		SuppressLimit:    c.SuppressLimit,
		ReuseLimit:       c.ReuseLimit,
		HalfLife:         c.HalfLife,
		MaxSuppressLimit: c.MaxSuppressLimit,
	}
}

// watchMonitoredAddresses reloads MonitoredAddresses from path whenever it
// changes on disk, applying the new list to cfg without a restart
// (grounded on the teacher's dns.go fsnotify watch loop).
func watchMonitoredAddresses(path string, cfg *Config, apply func([]string)) {

	if path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.err("config: cannot start config watcher: %v", err)
		return
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		log.err("config: cannot watch %v: %v", path, err)
		return
	}

	go func() {
		for event := range watcher.Events {
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reloaded, err := loadConfig(path)
			if err != nil {
				log.err("config: reload failed: %v", err)
				continue
			}
			log.info("config: reloaded monitored_addresses (%v entries)", len(reloaded.MonitoredAddresses))
			apply(reloaded.MonitoredAddresses)
		}
	}()
}
