// Command demo runs a single prompt through the normalization engine
// and prints the separated output channels. It is the quickest way to
// see the event model in action against a live backend (for example
// cmd/mock-backend).
//
// Usage:
//
//	demo -config config.yaml -prompt "count from 1 to 5"
//	demo -prompt "think about it" -thinking
//	demo -prompt "weather in paris" -tools
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tributary-ai/tributary/pkg/config"
	"github.com/tributary-ai/tributary/pkg/debug"
	"github.com/tributary-ai/tributary/pkg/engine"
	"github.com/tributary-ai/tributary/pkg/provider"
	"github.com/tributary-ai/tributary/pkg/provider/anthropic"
	"github.com/tributary-ai/tributary/pkg/provider/openaicompat"
	"github.com/tributary-ai/tributary/pkg/provider/responses"
	"github.com/tributary-ai/tributary/pkg/reasoning"
	"github.com/tributary-ai/tributary/pkg/storage"
	"github.com/tributary-ai/tributary/pkg/storage/memory"
	"github.com/tributary-ai/tributary/pkg/storage/postgres"
	"github.com/tributary-ai/tributary/pkg/toolcall"
)

func main() {
	if err := run(); err != nil {
		slog.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file path")
	prompt := flag.String("prompt", "Hello!", "user prompt to send")
	model := flag.String("model", "", "model override")
	thinking := flag.Bool("thinking", false, "request thinking output")
	tools := flag.Bool("tools", false, "offer a get_weather tool")
	noStream := flag.Bool("no-stream", false, "use the non-streaming path")
	flag.Parse()

	debug.Init("", "")

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov, err := buildProvider(cfg.Provider)
	if err != nil {
		return err
	}

	store, err := buildStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics)
	}

	eng, err := engine.New(prov, store, engine.Config{
		DefaultModel:         cfg.Engine.DefaultModel,
		Filter:               filterConfig(cfg.Reasoning),
		TrimXMLValues:        cfg.Reasoning.TrimXMLValues,
		DisableEmptyFallback: cfg.Engine.DisableEmptyFallback,
	})
	if err != nil {
		return err
	}

	req := &provider.Request{
		Model:    *model,
		Messages: []provider.Message{{Role: "user", Content: *prompt}},
		Stream:   !*noStream,
		Thinking: *thinking,
	}
	if *tools {
		req.Tools = []provider.Tool{{
			Name:        "get_weather",
			Description: "Get the current weather for a location",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"location":{"type":"string"}},"required":["location"]}`),
		}}
	}

	sinks := &engine.Sinks{
		OnText: func(delta string) {
			fmt.Print(delta)
		},
		OnThinking: func(delta string) {
			fmt.Printf("\x1b[2m%s\x1b[0m", delta)
		},
		OnToolCall: func(call toolcall.Completed) {
			fmt.Printf("\n[tool call] %s(%s) id=%s\n", call.Name, call.Arguments, call.ID)
		},
	}

	result, err := eng.Run(ctx, req, sinks)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("--- finish: %s", result.FinishReason)
	if result.Retried {
		fmt.Print(" (non-streaming retry)")
	}
	fmt.Println()
	if result.Usage != nil {
		fmt.Printf("--- usage: %d in / %d out\n", result.Usage.InputTokens, result.Usage.OutputTokens)
	}
	return nil
}

func buildProvider(cfg config.ProviderConfig) (provider.Provider, error) {
	switch cfg.Type {
	case "anthropic":
		return anthropic.NewClient(anthropic.Config{
			Name:    cfg.Name,
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		}), nil
	case "responses":
		return responses.NewClient(responses.Config{
			Name:    cfg.Name,
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		}), nil
	case "openaicompat", "":
		return openaicompat.NewClient(openaicompat.Config{
			Name:    cfg.Name,
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
			Capabilities: provider.Capabilities{
				ToolCalling: cfg.ToolCalling,
				Thinking:    cfg.Thinking,
			},
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}

func buildStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "memory":
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		slog.Info("storage enabled", "type", "postgres")
		return postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// filterConfig maps the YAML handling strings onto the tag filter
// configuration. Validation has already rejected anything but
// "forward" and "drop".
func filterConfig(cfg config.ReasoningConfig) reasoning.Config {
	fc := reasoning.DefaultConfig()
	if cfg.PreambleHandling == "drop" {
		fc.Preamble.Handling = reasoning.TagDrop
	}
	if cfg.BlockHandling == "drop" {
		fc.Block.Handling = reasoning.TagDrop
	}
	return fc
}

func serveMetrics(cfg config.MetricsConfig) {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	slog.Info("metrics listening", "addr", addr, "path", path)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server failed", "error", err)
	}
}
