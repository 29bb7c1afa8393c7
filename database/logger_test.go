package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLogger_Trace(t *testing.T) {
	query := func() (string, int64) { return `SELECT * FROM "products"`, 3 }

	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		elapsed time.Duration
		err     error
		message string
		entries int
	}{
		{"failed query", gormlogger.Warn, time.Millisecond, errors.New("syntax error"), "Query failed", 1},
		{"record not found is quiet", gormlogger.Warn, time.Millisecond, gorm.ErrRecordNotFound, "", 0},
		{"slow query", gormlogger.Warn, time.Second, nil, "Slow query", 1},
		{"fast query below info", gormlogger.Warn, time.Millisecond, nil, "", 0},
		{"silent", gormlogger.Silent, time.Second, errors.New("syntax error"), "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			l := NewGormLogger(zap.New(core)).LogMode(tt.level)

			l.Trace(context.Background(), time.Now().Add(-tt.elapsed), query, tt.err)

			if logs.Len() != tt.entries {
				t.Fatalf("Expected %d entries, got %d", tt.entries, logs.Len())
			}
			if tt.entries > 0 {
				entry := logs.All()[0]
				if entry.Message != tt.message {
					t.Errorf("Expected message %q, got %q", tt.message, entry.Message)
				}
				if entry.ContextMap()["sql"] != `SELECT * FROM "products"` {
					t.Errorf("Expected sql field, got %v", entry.ContextMap()["sql"])
				}
			}
		})
	}
}
