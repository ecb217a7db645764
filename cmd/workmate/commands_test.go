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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igrowicare/workmate/cmd/workmate/config"
	"github.com/igrowicare/workmate/services/ingest"
	"github.com/igrowicare/workmate/services/orchestrator/ledger"
	"github.com/igrowicare/workmate/services/orchestrator/middleware"
	"github.com/igrowicare/workmate/services/orchestrator/retrieval"
)

// execute runs the root command in an empty directory so no stray
// workmate.yaml or .env is picked up.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	configPath = config.DefaultPath
	envFiles = []string{".env"}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTokenCommand_IssuesVerifiableToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	out, err := execute(t, "token", "--uid", "3")

	require.NoError(t, err)
	info, err := middleware.NewJWTAuthProvider("cli-secret").Validate(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.UserID)
}

func TestTokenCommand_RejectsNonPositiveUID(t *testing.T) {
	_, err := execute(t, "token", "--uid=-1")
	assert.ErrorContains(t, err, "--uid")
}

func TestIngestCommand_RequiresWeaviate(t *testing.T) {
	t.Setenv("WEAVIATE_URL", "")

	_, err := execute(t, "ingest", "docs")

	assert.ErrorContains(t, err, "weaviate")
}

func TestRootCommand_BadConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o644))

	_, err := execute(t, "--config", path, "token", "--uid", "1")

	assert.ErrorContains(t, err, "configuration")
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestIngestPaths_ReportsAndSkips(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "guide.txt")
	pdf := filepath.Join(dir, "scan.pdf")
	require.NoError(t, os.WriteFile(doc, []byte("Breathe in for four counts."), 0o644))
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o644))
	index := retrieval.NewMemoryIndex()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := ingestPaths(context.Background(), cmd, ingest.New(stubEmbedder{}, index, ingest.DefaultConfig()), []string{doc, pdf})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "skipped unsupported file: "+pdf)
	assert.Contains(t, out.String(), "Ingested 1 file(s): 1 chunk(s), 1 written")
	assert.Equal(t, 1, index.Len())
}

func TestInitSchema_PrintsTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	for _, name := range ledger.TableNames() {
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + name)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	err = initSchema(context.Background(), cmd, ledger.NewMySQLLedger(db))

	require.NoError(t, err)
	assert.Equal(t, "Schema ready: users, user_points, mood_entries, wellbeing_assessments, posts\n", out.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
