// Package main provides a command line driver that navigates a saved Google
// Directions response with simulated positions.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/routenav/internal/config"
	"github.com/breatheroute/routenav/internal/directions"
	"github.com/breatheroute/routenav/internal/navigation"
	"github.com/breatheroute/routenav/internal/simulator"
)

// Version is set at compile time via ldflags.
var Version = "dev"

type options struct {
	configPath string
	directions string
	routeIndex int
	realtime   bool
	geojson    string
	kml        string
	verbose    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", os.Getenv("ROUTENAV_CONFIG"), "path to a YAML config file")
	flag.StringVar(&opts.directions, "directions", "", "path to a Google Directions JSON response (required)")
	flag.IntVar(&opts.routeIndex, "route", 0, "index of the route to navigate")
	flag.BoolVar(&opts.realtime, "realtime", false, "sleep between positions instead of running in virtual time")
	flag.StringVar(&opts.geojson, "geojson", "", "write the route and trap shapes as GeoJSON to this path")
	flag.StringVar(&opts.kml, "kml", "", "write the route and trap shapes as KML to this path")
	flag.BoolVar(&opts.verbose, "v", false, "log every position")
	flag.Parse()

	level := zerolog.InfoLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().
		Timestamp().
		Logger()

	if opts.directions == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("simulation failed")
		os.Exit(1) //nolint:gocritic // stop is only needed on the success path
	}
}

func run(ctx context.Context, opts options, log zerolog.Logger) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	f, err := os.Open(opts.directions)
	if err != nil {
		return fmt.Errorf("opening directions: %w", err)
	}
	defer f.Close()

	routes, err := directions.NewDecoder(cfg.DecoderConfig(log)).Decode(f)
	if err != nil {
		return err
	}
	if opts.routeIndex < 0 || opts.routeIndex >= len(routes) {
		return fmt.Errorf("%w: %d of %d", navigation.ErrRouteIndex, opts.routeIndex, len(routes))
	}
	route := routes[opts.routeIndex]

	log.Info().
		Str("version", Version).
		Str("route", route.Title).
		Int("steps", len(route.Steps)).
		Float64("distance_m", route.Distance.Value).
		Msg("route decoded")

	navCfg := cfg.NavigatorConfig(log, nil)
	navCfg.SessionID = "simulate"
	navCfg.Sink = navigation.NewLogSink(log)
	nav := navigation.New(navCfg)

	if err := nav.Navigate(ctx, route); err != nil {
		return err
	}

	if err := writeDebug(route, nav, opts); err != nil {
		return err
	}

	simCfg := cfg.SimulatorConfig(log)
	start := time.Now()

	if !opts.realtime {
		result, err := navigation.SimulateVirtual(ctx, nav, simCfg)
		if err != nil {
			return err
		}
		log.Info().
			Int("ticks", result.Ticks).
			Int("positions", result.Positions).
			Int("turns", result.Turns).
			Dur("simulated", result.Elapsed).
			Dur("took", time.Since(start)).
			Str("mode", string(result.Mode)).
			Msg("simulation finished")
		return nil
	}

	host := nav.Host(ctx)
	sim := simulator.New(host, simCfg)
	sim.Start(&route)
	if err := sim.Run(ctx); err != nil {
		return err
	}
	if err := host.Err(); err != nil {
		return err
	}

	log.Info().
		Dur("took", time.Since(start)).
		Str("mode", string(nav.Mode())).
		Msg("simulation finished")
	return nil
}

func writeDebug(route directions.Route, nav *navigation.Navigator, opts options) error {
	if opts.geojson == "" && opts.kml == "" {
		return nil
	}
	shapes := navigation.DebugShapes(route, nav.Options())

	if opts.geojson != "" {
		data, err := json.MarshalIndent(navigation.DebugGeoJSON(route, shapes), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding geojson: %w", err)
		}
		if err := os.WriteFile(opts.geojson, data, 0o644); err != nil {
			return fmt.Errorf("writing geojson: %w", err)
		}
	}

	if opts.kml != "" {
		f, err := os.Create(opts.kml)
		if err != nil {
			return fmt.Errorf("creating kml: %w", err)
		}
		if err := navigation.WriteDebugKML(f, route, shapes); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing kml: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("writing kml: %w", err)
		}
	}

	return nil
}
