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
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/igrowicare/workmate/services/ingest"
	"github.com/igrowicare/workmate/services/llm"
	"github.com/igrowicare/workmate/services/orchestrator"
	"github.com/igrowicare/workmate/services/orchestrator/retrieval"
)

func runIngest(cmd *cobra.Command, args []string) error {
	if cfg.WeaviateURL == "" {
		return fmt.Errorf("weaviate_url (or WEAVIATE_URL) must be set to ingest documents")
	}
	ctx := cmd.Context()

	embedder, err := llm.NewOpenAIEmbedder(cfg.EmbeddingClient())
	if err != nil {
		return err
	}
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	client, err := orchestrator.ConnectWeaviate(connectCtx, cfg.WeaviateURL)
	cancel()
	if err != nil {
		return err
	}

	return ingestPaths(ctx, cmd, ingest.New(embedder, retrieval.NewWeaviateIndex(client), cfg.IngestOptions()), args)
}

func ingestPaths(ctx context.Context, cmd *cobra.Command, in *ingest.Ingester, paths []string) error {
	report, err := in.Run(ctx, paths)
	for _, s := range report.Skipped {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped unsupported file: %s\n", s)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d file(s): %d chunk(s), %d written\n", report.Files, report.Chunks, report.Written)
	return nil
}
