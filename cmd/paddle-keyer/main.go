// Command paddle-keyer reads a Morse paddle from serial, GPIO or MIDI,
// runs an iambic keyer and publishes the keyed elements to MQTT.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/paddle-keyer/internal/config"
	"github.com/sweeney/paddle-keyer/internal/logging"
	"github.com/sweeney/paddle-keyer/internal/paddle"
)

var (
	// Version is set at build time.
	Version = ""

	configFile string
	v          = config.New()

	rootCmd = &cobra.Command{
		Use:           "paddle-keyer",
		Short:         "Iambic keyer daemon for Morse paddles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.Read(v, configFile)
		},
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the keyer daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closer() //nolint:errcheck
			return run(cfg, v, logger)
		},
	}

	stateCmd = &cobra.Command{
		Use:   "state",
		Short: "Print the raw paddle contacts once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, closer, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closer() //nolint:errcheck
			dit, dah, err := readOnce(cfg.Source)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "DIT: %s, DAH: %s\n", onOff(dit), onOff(dah))
			return nil
		},
	}

	portsCmd = &cobra.Command{
		Use:   "ports",
		Short: "List serial ports and MIDI inputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			ports, err := paddle.ListSerialPorts()
			if err != nil {
				fmt.Fprintf(out, "serial: %v\n", err)
			}
			for _, p := range ports {
				fmt.Fprintf(out, "serial  %s\n", p)
			}
			for _, p := range paddle.ListMIDIInputs() {
				fmt.Fprintf(out, "midi    %s\n", p)
			}
			return nil
		},
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}

	configInitCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default config file",
		Args:  cobra.MaximumNArgs(1),
		// The file may not exist yet, so skip reading it.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				dirs := config.ConfigDirs()
				if len(dirs) == 0 {
					return errors.New("no configuration directory found; pass a path")
				}
				path = filepath.Join(dirs[0], config.AppName+".yaml")
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Wrote config file to:", path)
			return nil
		},
	}

	manCmd = &cobra.Command{
		Use:                   "man",
		Short:                 "Generate the man page",
		Hidden:                true,
		DisableFlagsInUseLine: true,
		Args:                  cobra.NoArgs,
		PersistentPreRunE:     func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := mcobra.NewManPage(1, rootCmd)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), page.Build(roff.NewDocument()))
			return err
		},
	}
)

func init() {
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default: search the user and system config dirs)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-file", "", "log to a rotated file instead of stderr")
	pf.String("source", config.SourceSerial, "paddle source: serial, gpio, gpio-edge, midi")
	pf.String("port", "/dev/ttyUSB0", "serial port")
	pf.String("chip", "gpiochip0", "GPIO chip")
	pf.Int("pin-dit", 17, "GPIO line offset for the dit paddle")
	pf.Int("pin-dah", 27, "GPIO line offset for the dah paddle")
	pf.String("midi-device", "", "MIDI input name substring (empty: first input)")

	f := runCmd.Flags()
	f.Int("wpm", 25, "keyer speed in words per minute (5-60)")
	f.String("mode", "B", "iambic mode: A or B")
	f.Duration("poll", 0, "polling interval (default 1ms)")
	f.Int("debounce", 0, "consecutive identical reads to accept a change (0: source default)")
	f.String("broker", "", "MQTT broker address; setting it enables MQTT")
	f.String("http", ":8080", "HTTP status address (empty to disable)")
	f.Duration("heartbeat", 0, "heartbeat interval (default 15m, 0 in the config file disables)")

	if err := bind(v, pf, persistentBindings); err != nil {
		panic(err)
	}
	if err := bind(v, f, runBindings); err != nil {
		panic(err)
	}

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(runCmd, stateCmd, portsCmd, configCmd, manCmd)
}

// Config keys overridden by flags, key -> flag name.
var (
	persistentBindings = map[string]string{
		"log.level":      "log-level",
		"log.file":       "log-file",
		"source.type":    "source",
		"source.port":    "port",
		"source.chip":    "chip",
		"source.dit_pin": "pin-dit",
		"source.dah_pin": "pin-dah",
		"source.device":  "midi-device",
	}
	runBindings = map[string]string{
		"keyer.wpm":            "wpm",
		"keyer.mode":           "mode",
		"source.poll_interval": "poll",
		"source.debounce":      "debounce",
		"mqtt.broker":          "broker",
		"http.addr":            "http",
		"heartbeat":            "heartbeat",
	}
)

// bind makes each flag override its config key when set on the command line.
func bind(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		f := fs.Lookup(name)
		if f == nil {
			return fmt.Errorf("bind %s: no flag named %q", key, name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger.
func setup(cmd *cobra.Command) (config.Config, *log.Logger, func() error, error) {
	// A broker given on the command line implies MQTT.
	if cmd.Flags().Changed("broker") {
		v.Set("mqtt.enabled", true)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("using configuration file", "path", used)
	}
	return cfg, logger, closer, nil
}

func onOff(closed bool) string {
	if closed {
		return "ON"
	}
	return "OFF"
}
