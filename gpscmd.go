package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gtu-nova/mavsign/gps"
	"github.com/gtu-nova/mavsign/mavlink"
)

type gpsFlags struct {
	absolute bool
	offset   int64
}

func (g *gpsFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&g.absolute, "absolute", false, "Treat -time as a unix time instead of an offset from now")
	fs.Int64Var(&g.offset, "time", 0, "GPS offset in seconds (86400 is one day), or the unix time with -absolute")
}

func (e *env) feedConfig(g gpsFlags) gps.Config {
	cfg := gps.Config{
		Mode:         gps.ModeOffset,
		Offset:       g.offset,
		Interval:     e.cfg.GPS.Interval,
		FastInterval: e.cfg.GPS.FastInterval,
		Step:         e.cfg.GPS.Step,
		Position: gps.Position{
			Lat: e.cfg.GPS.Lat,
			Lon: e.cfg.GPS.Lon,
			Alt: e.cfg.GPS.Alt,
		},
		Satellites: e.cfg.GPS.Satellites,
	}
	if g.absolute {
		cfg.Mode = gps.ModeAbsolute
	}
	return cfg
}

func runGPS(e *env, args []string) error {
	fs := flag.NewFlagSet("gps", flag.ExitOnError)
	sinkName := fs.String("sink", "json", "json: datagrams for MAVProxy's GPSInput module, mavlink: signed GPS_INPUT over the endpoint")
	target := fs.String("target", e.cfg.GPS.Target, "Where the json sink sends to")
	wait := fs.Duration("wait", heartbeatWait, "With the mavlink sink, wait this long for a heartbeat first, 0 to skip")
	var g gpsFlags
	g.register(fs)
	_ = fs.Parse(args)

	var sink gps.Sink
	switch *sinkName {
	case "json":
		js, err := gps.NewJSONSink(*target)
		if err != nil {
			return err
		}
		defer js.Close()
		sink = js
		logger.Infof("Sending GPS JSON to %s\n", *target)
	case "mavlink":
		def, err := e.message("GPS_INPUT")
		if err != nil {
			return err
		}
		l, err := e.openLink(0, true)
		if err != nil {
			return err
		}
		defer l.Close()
		if *wait > 0 {
			if err := waitHeartbeat(l, *wait); err != nil {
				return err
			}
		}
		sink = gps.NewMAVLinkSink(l, def)
	default:
		return fmt.Errorf("unknown sink %q", *sinkName)
	}

	feed := gps.NewFeed(e.feedConfig(g), sink, logger)

	ctx, cancel := interruptContext()
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		errc <- feed.Run(ctx)
		cancel()
	}()

	if err := gps.NewConsole(feed, os.Stdout).Run(ctx, os.Stdin); err != nil {
		return err
	}
	cancel()
	return <-errc
}

func runGPSOnce(e *env, args []string) error {
	fs := flag.NewFlagSet("gps-once", flag.ExitOnError)
	var sf sendFlags
	sf.register(fs)
	var g gpsFlags
	g.register(fs)
	var tf timeFlags
	tf.register(fs)
	_ = fs.Parse(args)

	def, err := e.message("GPS_INPUT")
	if err != nil {
		return err
	}
	sample, err := gps.NewFeed(e.feedConfig(g), nil, logger).Next()
	if err != nil {
		return err
	}
	msg, err := mavlink.NewMessage(def, sample.Values()...)
	if err != nil {
		return err
	}
	when, err := tf.input()
	if err != nil {
		return err
	}
	logger.Infof("GPS week %d, %s into the week\n", sample.TimeWeek, time.Duration(sample.TimeWeekMs)*time.Millisecond)
	return e.emit(msg, sf, when)
}
