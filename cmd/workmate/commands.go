// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/igrowicare/workmate/cmd/workmate/config"
	"github.com/igrowicare/workmate/pkg/logging"
)

var (
	configPath string
	envFiles   []string

	// cfg and logger are populated by the root PersistentPreRunE.
	cfg    *config.Config
	logger *logging.Logger

	tokenUserID int64
	tokenTTL    time.Duration
)

var (
	rootCmd = &cobra.Command{
		Use:   "workmate",
		Short: "Workplace well-being chat backend",
		Long: `workmate serves the retrieval-augmented chat assistant, records daily
mood check-ins and loads the knowledge base.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadRuntime,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	ingestCmd = &cobra.Command{
		Use:     "ingest [path...]",
		Short:   "Split, embed and store .txt and .md documents in the knowledge base",
		Aliases: []string{"i"},
		Args:    cobra.MinimumNArgs(1),
		RunE:    runIngest, // Defined in cmd_ingest.go
	}

	initDBCmd = &cobra.Command{
		Use:   "init-db",
		Short: "Create the MySQL tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE:  runInitDB, // Defined in cmd_db.go
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Issue a session token for local testing",
		Args:  cobra.NoArgs,
		RunE:  runToken, // Defined in cmd_token.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML config file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(initDBCmd)

	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().Int64Var(&tokenUserID, "uid", 0, "User id to embed in the token (required)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("uid")
}

// loadRuntime loads .env files and the configuration, then installs the
// process logger.
func loadRuntime(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return err
	}
	loaded, err := config.Load(configPath)
	if err != nil {
		logging.Default().Error("Configuration rejected", "path", configPath, "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg = loaded

	logger = logging.New(cfg.LoggerConfig("workmate-" + cmd.Name()))
	slog.SetDefault(logger.Slog())
	return nil
}
