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

	"github.com/spf13/cobra"

	"github.com/igrowicare/workmate/services/orchestrator/middleware"
)

// runToken prints a signed "token" cookie value. The web client normally
// receives it from the login service; this is for curl and local testing.
func runToken(cmd *cobra.Command, _ []string) error {
	if tokenUserID <= 0 {
		return fmt.Errorf("--uid must be positive")
	}
	token, err := middleware.NewJWTAuthProvider(cfg.Server.JWTSecret).Issue(tokenUserID, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
