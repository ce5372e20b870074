// Command inference-gateway runs one request through the gateway pipeline
// from the command line: load config, route, stream the reply to stdout.
//
// Without a live backend it registers the scripted adapter for every
// configured dialect, so the full pipeline (routing, budget, retries,
// telemetry) can be exercised offline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/relaycore/inference-gateway/internal/adapters"
	"github.com/relaycore/inference-gateway/internal/canonical"
	"github.com/relaycore/inference-gateway/internal/capability"
	"github.com/relaycore/inference-gateway/internal/config"
	"github.com/relaycore/inference-gateway/internal/gateway"
	"github.com/relaycore/inference-gateway/internal/monitoring"
)

func main() {
	var (
		configPath = "gateway.yaml"
		envFile    = ".env"
		route      = ""
		debug      = false
		prompt     []string
	)

	args := os.Args[1:]
	i := 0
parseLoop:
	for i < len(args) {
		switch args[i] {
		case "-h", "--help":
			printHelp()
			return
		case "-c", "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --config requires a value")
				os.Exit(1)
			}
			configPath = args[i+1]
			i += 2
		case "--env":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --env requires a value")
				os.Exit(1)
			}
			envFile = args[i+1]
			i += 2
		case "-r", "--route":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --route requires a value")
				os.Exit(1)
			}
			route = args[i+1]
			i += 2
		case "-d", "--debug":
			debug = true
			i++
		case "--":
			prompt = args[i+1:]
			break parseLoop
		default:
			prompt = args[i:]
			break parseLoop
		}
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	if len(prompt) == 0 {
		printHelp()
		os.Exit(1)
	}
	text := strings.Join(prompt, " ")

	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	registry := adapters.NewRegistry()
	registerDryRunAdapters(cfg, registry, text)

	sink, closeSink, err := buildSink(cfg.Monitoring)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up telemetry")
	}
	defer closeSink()

	gw := gateway.New(cfg, registry, gateway.WithSink(sink))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req := &canonical.Request{
		BackendHint: route,
		Messages: []canonical.Message{
			{Role: canonical.RoleUser, Parts: []canonical.ContentPart{canonical.TextPart(text)}},
		},
		Stream: true,
	}

	es, err := gw.InferStream(ctx, req)
	if err != nil {
		log.Fatal().Err(err).Msg("request rejected")
	}
	go func() {
		<-ctx.Done()
		es.Close()
	}()

	exitCode := 0
	for ev := range es.Events() {
		switch ev.Kind {
		case canonical.EventOutputTextDelta:
			fmt.Print(ev.TextDelta)
		case canonical.EventUsage:
			log.Debug().
				Int("input_tokens", ev.Usage.InputTokens).
				Int("output_tokens", ev.Usage.OutputTokens).
				Msg("usage reported")
		case canonical.EventFailed:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", ev.Err)
			exitCode = 1
		case canonical.EventCompleted:
			fmt.Println()
		}
	}
	os.Exit(exitCode)
}

// registerDryRunAdapters installs a scripted echo adapter for each dialect
// named in the config.
func registerDryRunAdapters(cfg *config.Config, registry *adapters.Registry, text string) {
	caps := capability.Set{
		Streaming:     true,
		ToolCalls:     true,
		JSONOutput:    true,
		Vision:        true,
		ResumableSafe: true,
	}
	seen := map[string]bool{}
	for _, p := range cfg.Backends {
		if seen[p.Dialect] {
			continue
		}
		seen[p.Dialect] = true
		a := adapters.NewScriptedAdapter(p.Dialect, caps)
		a.SetScript("", &adapters.Script{Events: []adapters.RawEvent{
			{Kind: adapters.RawTextDelta, TextDelta: "(dry run) "},
			{Kind: adapters.RawTextDelta, TextDelta: text},
			{Kind: adapters.RawUsage, InputTokens: len(text) / 4, OutputTokens: len(text) / 4},
			{Kind: adapters.RawDone},
		}})
		registry.Register(a)
	}
}

// buildSink assembles the telemetry fan-out from the monitoring config.
func buildSink(mc config.MonitoringConfig) (monitoring.Sink, func(), error) {
	closeSink := func() {}
	if !mc.Enabled {
		return monitoring.NopSink{}, closeSink, nil
	}

	var sinks monitoring.MultiSink
	if mc.LogLifecycle {
		sinks = append(sinks, monitoring.LogSink{})
	}
	if mc.LogPath != "" {
		t, err := monitoring.NewTracker(mc.LogPath)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, t)
	}
	if mc.SQLitePath != "" {
		s, err := monitoring.NewSQLiteSink(mc.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, s)
		closeSink = func() { _ = s.Close() }
	}
	if len(sinks) == 0 {
		return monitoring.NopSink{}, closeSink, nil
	}
	return sinks, closeSink, nil
}

func printHelp() {
	fmt.Println(`Usage: inference-gateway [options] <prompt...>

Options:
  -c, --config <path>   Configuration file (default: gateway.yaml)
      --env <path>      Env overlay file for credential refs (default: .env)
  -r, --route <name>    Route alias or backend/model pair (default: "default")
  -d, --debug           Verbose logging
  -h, --help            Show this help`)
}
