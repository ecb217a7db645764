// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/igrowicare/workmate/services/orchestrator/datatypes"
)

var ledgerTracer = otel.Tracer("workmate.orchestrator.ledger")

// =============================================================================
// Connection
// =============================================================================

// DBConfig describes the MySQL connection.
type DBConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DefaultDBConfig reads DB_HOST, DB_PORT, DB_USER, DB_PASSWORD and DB_NAME.
func DefaultDBConfig() DBConfig {
	port, err := strconv.Atoi(os.Getenv("DB_PORT"))
	if err != nil || port <= 0 {
		port = 3306
	}
	return DBConfig{
		Host:            envOr("DB_HOST", "localhost"),
		Port:            port,
		User:            envOr("DB_USER", "root"),
		Password:        os.Getenv("DB_PASSWORD"),
		Name:            envOr("DB_NAME", "workmate"),
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// DSN renders the driver connection string.
func (c DBConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	cfg.DBName = c.Name
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Open connects to MySQL and pings it.
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connected", "host", cfg.Host, "database", cfg.Name)
	return db, nil
}

// =============================================================================
// MySQLLedger
// =============================================================================

// MySQLLedger implements Ledger over database/sql.
//
// # Thread Safety
//
// Safe for concurrent use; *sql.DB is a pool.
type MySQLLedger struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLLedger wraps an open pool.
func NewMySQLLedger(db *sql.DB) *MySQLLedger {
	return &MySQLLedger{db: db, now: time.Now}
}

func (l *MySQLLedger) today() time.Time {
	return l.now()
}

// RecordMood implements Ledger.
//
// # Description
//
// Runs in one transaction:
//
//  1. Upsert (user_id, today) in mood_entries.
//  2. If the row was inserted, add one point to user_points.
//  3. Read the total back.
//
// # Outputs
//
//   - *MoodResult: PointsEarned is 1 or 0.
//   - error: ErrInvalidUser, ErrInvalidMood, or a wrapped driver error.
func (l *MySQLLedger) RecordMood(ctx context.Context, userID int64, mood datatypes.Mood) (*MoodResult, error) {
	ctx, span := ledgerTracer.Start(ctx, "MySQLLedger.RecordMood")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID), attribute.String("mood", string(mood)))

	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	if !mood.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMood, mood)
	}
	score := mood.Score()
	day := l.today().Format(dateLayout)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("begin mood transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO mood_entries (user_id, entry_date, mood, mood_score) VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE mood = VALUES(mood), mood_score = VALUES(mood_score)`,
		userID, day, string(mood), score)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mood upsert failed")
		return nil, fmt.Errorf("upsert mood entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("upsert mood entry: %w", err)
	}

	earned := 0
	if affected == 1 {
		earned = 1
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_points (user_id, total_points) VALUES (?, 1)
ON DUPLICATE KEY UPDATE total_points = total_points + 1`,
			userID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "points upsert failed")
			return nil, fmt.Errorf("award point: %w", err)
		}
	}

	total, err := queryTotal(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit mood transaction: %w", err)
	}

	span.SetAttributes(attribute.Int("points.earned", earned))
	return &MoodResult{PointsEarned: earned, TotalPoints: total, MoodScore: score}, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryTotal(ctx context.Context, q queryRower, userID int64) (int, error) {
	var total int
	err := q.QueryRowContext(ctx, `SELECT total_points FROM user_points WHERE user_id = ?`, userID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read total points: %w", err)
	}
	return total, nil
}

// TotalPoints implements Ledger.
func (l *MySQLLedger) TotalPoints(ctx context.Context, userID int64) (int, error) {
	if userID <= 0 {
		return 0, ErrInvalidUser
	}
	return queryTotal(ctx, l.db, userID)
}

// Today implements Ledger.
func (l *MySQLLedger) Today(ctx context.Context, userID int64) (*MoodEntry, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	day := l.today().Format(dateLayout)

	var (
		mood  string
		score int
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT mood, mood_score FROM mood_entries WHERE user_id = ? AND entry_date = ?`,
		userID, day).Scan(&mood, &score)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read today's mood: %w", err)
	}
	return &MoodEntry{Date: day, Mood: datatypes.Mood(mood), MoodScore: score}, nil
}

// History implements Ledger. days is clamped with ClampDays.
func (l *MySQLLedger) History(ctx context.Context, userID int64, days int) ([]MoodEntry, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	since := l.today().AddDate(0, 0, -ClampDays(days)).Format(dateLayout)

	rows, err := l.db.QueryContext(ctx,
		`SELECT entry_date, mood, mood_score FROM mood_entries
WHERE user_id = ? AND entry_date >= ? ORDER BY entry_date DESC`,
		userID, since)
	if err != nil {
		return nil, fmt.Errorf("query mood history: %w", err)
	}
	defer rows.Close()

	entries := make([]MoodEntry, 0)
	for rows.Next() {
		var (
			date  time.Time
			mood  string
			score int
		)
		if err := rows.Scan(&date, &mood, &score); err != nil {
			return nil, fmt.Errorf("scan mood history: %w", err)
		}
		entries = append(entries, MoodEntry{Date: date.Format(dateLayout), Mood: datatypes.Mood(mood), MoodScore: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mood history: %w", err)
	}
	return entries, nil
}

// Streak implements Ledger.
func (l *MySQLLedger) Streak(ctx context.Context, userID int64) (int, error) {
	if userID <= 0 {
		return 0, ErrInvalidUser
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT entry_date FROM mood_entries WHERE user_id = ? ORDER BY entry_date DESC LIMIT ?`,
		userID, MaxHistoryDays+1)
	if err != nil {
		return 0, fmt.Errorf("query mood dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return 0, fmt.Errorf("scan mood date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate mood dates: %w", err)
	}
	return consecutiveDays(dates, l.today()), nil
}

// CreateAssessment implements Ledger. Each score must be in 0..3.
func (l *MySQLLedger) CreateAssessment(ctx context.Context, userID int64, scores [4]int, shareWithHR bool) (*Assessment, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	total := 0
	for i, s := range scores {
		if s < 0 || s > 3 {
			return nil, fmt.Errorf("q%d score %d out of range 0-3", i+1, s)
		}
		total += s
	}
	level := LevelFor(total)

	res, err := l.db.ExecContext(ctx,
		`INSERT INTO wellbeing_assessments
(user_id, q1_score, q2_score, q3_score, q4_score, total_score, level, share_with_hr)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, scores[0], scores[1], scores[2], scores[3], total, string(level), shareWithHR)
	if err != nil {
		return nil, fmt.Errorf("insert assessment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert assessment: %w", err)
	}

	return &Assessment{
		ID:          id,
		UserID:      userID,
		Q1:          scores[0],
		Q2:          scores[1],
		Q3:          scores[2],
		Q4:          scores[3],
		Total:       total,
		Level:       level,
		Advice:      level.Advice(),
		ShareWithHR: shareWithHR,
		CreatedAt:   l.now(),
	}, nil
}

const assessmentColumns = `id, q1_score, q2_score, q3_score, q4_score, total_score, level, share_with_hr, created_at`

// scanAssessment reads one row selected with assessmentColumns.
func scanAssessment(row interface{ Scan(dest ...any) error }, userID int64) (Assessment, error) {
	a := Assessment{UserID: userID}
	var level string
	if err := row.Scan(&a.ID, &a.Q1, &a.Q2, &a.Q3, &a.Q4, &a.Total, &level, &a.ShareWithHR, &a.CreatedAt); err != nil {
		return Assessment{}, err
	}
	a.Level = Level(level)
	a.Advice = a.Level.Advice()
	return a, nil
}

// LatestAssessment implements Ledger.
func (l *MySQLLedger) LatestAssessment(ctx context.Context, userID int64) (*Assessment, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	row := l.db.QueryRowContext(ctx,
		`SELECT `+assessmentColumns+`
FROM wellbeing_assessments WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		userID)
	a, err := scanAssessment(row, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read latest assessment: %w", err)
	}
	return &a, nil
}

// AssessmentHistory implements Ledger. limit is clamped with
// ClampAssessmentLimit.
func (l *MySQLLedger) AssessmentHistory(ctx context.Context, userID int64, limit int) ([]Assessment, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+assessmentColumns+`
FROM wellbeing_assessments WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, ClampAssessmentLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query assessment history: %w", err)
	}
	defer rows.Close()

	history := make([]Assessment, 0)
	for rows.Next() {
		a, err := scanAssessment(rows, userID)
		if err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		history = append(history, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assessments: %w", err)
	}
	return history, nil
}

// InitSchema implements Ledger.
func (l *MySQLLedger) InitSchema(ctx context.Context) ([]string, error) {
	for _, t := range tableDDL {
		if _, err := l.db.ExecContext(ctx, t.DDL); err != nil {
			return nil, fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	slog.Info("Ledger schema ensured", "tables", TableNames())
	return TableNames(), nil
}

// Ping implements Ledger.
func (l *MySQLLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

var _ Ledger = (*MySQLLedger)(nil)
