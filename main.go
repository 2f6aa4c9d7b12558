package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gtu-nova/mavsign/config"
	"github.com/gtu-nova/mavsign/dialect"
	"github.com/gtu-nova/mavsign/link"
	"github.com/gtu-nova/mavsign/mavlink"
	"github.com/gtu-nova/mavsign/transport"
)

const keyEnv = "MAVSIGN_KEY"

var (
	configPath = flag.String("config", "", "YAML config file")
	endpoint   = flag.String("e", "", "Endpoint: udpin:host:port, udpout:host:port, tcp:host:port or serial:/dev/tty...[:baud]")
	passphrase = flag.String("key", "", "Signing passphrase (default $"+keyEnv+")")
	verbose    = flag.Bool("v", false, "Log every frame in hex")
	gomavlib   = flag.Bool("all", false, "Use every message of the ardupilotmega dialect")
)

var logger = logrus.New()

func initLogger(cfg config.Log) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	if *verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	logger.SetOutput(os.Stdout)
	if cfg.File != "" {
		logger.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}))
	}
	return nil
}

// env is what every command gets: the merged config and the dialect.
type env struct {
	cfg     config.Config
	dialect *dialect.Registry
}

var errNoKey = errors.New("no signing passphrase, use -key or $" + keyEnv)

func (e *env) key() (mavlink.SessionKey, error) {
	p := *passphrase
	if p == "" {
		p = os.Getenv(keyEnv)
	}
	if p == "" {
		return mavlink.SessionKey{}, errNoKey
	}
	return mavlink.NewSessionKey(p), nil
}

func (e *env) message(name string) (*mavlink.MessageDefinition, error) {
	def, ok := e.dialect.ByName(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, mavlink.ErrUnknownMessage)
	}
	return def, nil
}

// openLink opens the configured endpoint. The key is optional for links
// that only listen.
func (e *env) openLink(seq uint8, needKey bool) (*link.Link, error) {
	key, err := e.key()
	if err != nil && needKey {
		return nil, err
	}
	port, err := transport.Open(e.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("can't open %s: %w", e.cfg.Endpoint, err)
	}
	logger.Infof("Opened %s\n", e.cfg.Endpoint)
	return link.New(port, link.Options{
		Key:         key,
		LinkID:      e.cfg.LinkID,
		SystemID:    e.cfg.SystemID,
		ComponentID: e.cfg.ComponentID,
		Seq:         seq,
		Dialect:     e.dialect,
	}, logger), nil
}

func loadDialect(cfg config.Config) (*dialect.Registry, error) {
	d := dialect.Default()
	if *gomavlib {
		all, err := dialect.FromGomavlib(ardupilotmega.Dialect)
		if err != nil {
			return nil, err
		}
		d = d.Merge(all)
	}
	if cfg.Dialect != "" {
		extra, err := dialect.Load(cfg.Dialect)
		if err != nil {
			return nil, err
		}
		d = d.Merge(extra)
	}
	return d, nil
}

type command struct {
	usage string
	run   func(e *env, args []string) error
}

var commands = map[string]command{
	"encode":   {"build, print and optionally send one signed packet", runEncode},
	"custom":   {"alias of encode", runEncode},
	"decode":   {"inspect a hex capture", runDecode},
	"replay":   {"send a hex capture verbatim", runReplay},
	"gps":      {"live GPS_INPUT feed with a console to move time and position", runGPS},
	"gps-once": {"one signed GPS_INPUT packet for a chosen time", runGPSOnce},
	"view":     {"print TIMESYNC and SYSTEM_TIME times from a vehicle", runView},
	"dialect":  {"list the known messages", runDialect},
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags] <command> [command flags]\n\nCommands:\n", os.Args[0])
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-9s %s\n", name, commands[name].usage)
	}
	fmt.Fprintf(out, "\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Can't load config (%v)\n", err)
	}
	if *endpoint != "" {
		cfg.Endpoint = *endpoint
	}
	if err := initLogger(cfg.Log); err != nil {
		logger.Fatalf("Can't set up logging (%v)\n", err)
	}

	d, err := loadDialect(cfg)
	if err != nil {
		logger.Fatalf("Can't load dialect (%v)\n", err)
	}

	if err := cmd.run(&env{cfg: cfg, dialect: d}, flag.Args()[1:]); err != nil {
		logger.Fatal(err)
	}
}
