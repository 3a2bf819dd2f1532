package main

import (
	"fmt"

	"github.com/cwrk-planet/roomchat/config"
	"github.com/cwrk-planet/roomchat/pkg/logger"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "roomchat",
		Short:         "Real-time chat rooms with presence over websockets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config.yaml (default $CONFIG_PATH or "+config.DefaultPath+")")

	serve := newServeCmd(&cfgPath)
	root.AddCommand(serve, newMigrateCmd(&cfgPath))
	// без подкоманды запускаем сервер
	root.RunE = serve.RunE

	return root
}

// setup загружает конфиг и инициализирует логгер.
func setup(cfgPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     level,
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	return cfg, nil
}
