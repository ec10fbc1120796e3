package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/marcogenualdo/edge-bridge/internal/auth"
	"github.com/marcogenualdo/edge-bridge/internal/auth/oidc"
	"github.com/marcogenualdo/edge-bridge/internal/auth/saml"
	"github.com/marcogenualdo/edge-bridge/internal/cache"
	"github.com/marcogenualdo/edge-bridge/internal/config"
	"github.com/marcogenualdo/edge-bridge/internal/server"
)

const (
	version           = "1.0.0"
	defaultConfigPath = "/etc/edge-bridge/config.yaml"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	configPathShort := flag.String("c", defaultConfigPath, "path to configuration file (short)")
	showVersion := flag.Bool("version", false, "show version and exit")
	showHelp := flag.Bool("help", false, "show help and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("edge-bridge v%s\n", version)
		os.Exit(0)
	}

	if *showHelp {
		fmt.Println("edge-bridge - cross-origin session bridge and authenticated backend proxy")
		fmt.Println("\nUsage:")
		flag.PrintDefaults()
		fmt.Println("\nThe configuration file is optional; EDGE_BRIDGE_CONFIG overrides the default path.")
		os.Exit(0)
	}

	cfgPath := *configPath
	if *configPathShort != defaultConfigPath {
		cfgPath = *configPathShort
	}
	if cfgPath == defaultConfigPath {
		if v := os.Getenv("EDGE_BRIDGE_CONFIG"); v != "" {
			cfgPath = v
		}
	}

	if err := run(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting edge-bridge", "version", version, "env", cfg.Env)
	if !cfg.IsProduction() {
		logger.Warn("running with development settings; insecure default secrets may be in use")
	}

	cacheInstance, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	logger.Info("cache initialized", "type", cfg.Cache.Type)

	ctx := context.Background()
	providers := make(map[string]auth.Provider)

	for _, providerCfg := range cfg.Providers {
		var provider auth.Provider
		var err error

		switch providerCfg.Type {
		case "oidc":
			provider, err = oidc.NewProvider(ctx, providerCfg, cacheInstance)
			if err != nil {
				return fmt.Errorf("failed to create OIDC provider %s: %w", providerCfg.ID, err)
			}

		case "saml":
			provider, err = saml.NewProvider(ctx, providerCfg, cacheInstance, cfg.Server.BaseURL)
			if err != nil {
				return fmt.Errorf("failed to create SAML provider %s: %w", providerCfg.ID, err)
			}

		default:
			return fmt.Errorf("unsupported provider type: %s", providerCfg.Type)
		}

		providers[providerCfg.ID] = provider
		logger.Info("provider initialized",
			"id", providerCfg.ID,
			"name", providerCfg.Name,
			"type", providerCfg.Type,
		)
	}

	srv, err := server.New(*cfg, cacheInstance, providers, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("bridge configured",
		"allowed_hosts", len(cfg.Bridge.AllowedHosts),
		"preview_patterns", len(cfg.Bridge.PreviewPatterns),
		"single_use_tokens", cfg.SingleUseTokens(),
	)

	return srv.Start()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", "edge-bridge")
}
