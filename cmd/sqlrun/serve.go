package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vibesql/sqlrun/internal/config"
	"github.com/vibesql/sqlrun/internal/naming"
	"github.com/vibesql/sqlrun/internal/server"
	"github.com/vibesql/sqlrun/internal/version"
)

type cmdServe struct {
	global *cmdGlobal

	flagConfig string
}

func (c *cmdServe) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "serve"
	cmd.Short = "Serve script execution over HTTP"
	cmd.Long = `Description:
  Serve script execution over HTTP

  POST /v1/execute takes the same parameters as "sqlrun run" as a JSON
  object. Datasources declared in the configuration file are bound at
  startup and can be used by name. Settings can be overridden through
  SQLRUN_ environment variables, e.g. SQLRUN_SERVER_PORT.
`
	cmd.Args = cobra.NoArgs
	cmd.RunE = c.Run
	cmd.Flags().StringVar(&c.flagConfig, "config", "", "Service configuration file (YAML, JSON or TOML)")

	return cmd
}

func (c *cmdServe) Run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.flagConfig)
	if err != nil {
		return err
	}

	log, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}

	// Explicit CLI flags win over the file.
	if cmd.Flags().Changed("log-level") || cmd.Flags().Changed("log-format") {
		log, err = c.global.logger(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
	}

	log.Infof("Starting sqlrun %s", version.Get().Short())

	release, err := naming.BindResources(cfg.Datasources)
	if err != nil {
		return fmt.Errorf("failed to bind datasources: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			log.Errorf("Failed to release datasources: %v", err)
		}
	}()

	for _, ds := range cfg.Datasources {
		log.WithField("datasource", ds.Name).Info("Datasource bound")
	}

	httpServer := server.NewServer(server.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		MaxConnections: cfg.Server.MaxConnections,
	}, server.NewHandler(log), log)

	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	log.Infof("HTTP API: http://%s", httpServer.Addr())

	if err := httpServer.WaitForShutdown(cmd.Context()); err != nil {
		return err
	}

	log.Info("Shutdown complete")
	return nil
}
