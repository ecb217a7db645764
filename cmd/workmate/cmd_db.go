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
	"strings"

	"github.com/spf13/cobra"

	"github.com/igrowicare/workmate/services/orchestrator/ledger"
)

func runInitDB(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	db, err := ledger.Open(ctx, cfg.Database.DBConfig)
	if err != nil {
		return err
	}
	defer db.Close()

	return initSchema(ctx, cmd, ledger.NewMySQLLedger(db))
}

func initSchema(ctx context.Context, cmd *cobra.Command, l ledger.Ledger) error {
	tables, err := l.InitSchema(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema ready: %s\n", strings.Join(tables, ", "))
	return nil
}
