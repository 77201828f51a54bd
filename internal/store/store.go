// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

package store

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/voxrelay/voxrelay/internal/commons"
)

// InteractionStore persists interaction records. The call orchestrator
// invokes Save fire-and-forget: a write failure is logged, never
// propagated back into the call state machine.
type InteractionStore interface {
	Save(ctx context.Context, record *InteractionRecord) error
}

type postgresStore struct {
	db     *gorm.DB
	logger commons.Logger
}

// NewPostgresStore opens a GORM connection to dsn and auto-migrates
// the interaction_records table.
func NewPostgresStore(logger commons.Logger, dsn string) (InteractionStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.AutoMigrate(&InteractionRecord{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &postgresStore{db: db, logger: logger.With("component", "store.Postgres")}, nil
}

func (s *postgresStore) Save(ctx context.Context, record *InteractionRecord) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("store: save interaction record %s: %w", record.UniqueID, err)
	}
	return nil
}

// noopStore is used when no DATABASE_DSN is configured: interaction
// records are dropped with a log line instead of failing the call.
type noopStore struct {
	logger commons.Logger
}

// NewNoopStore returns an InteractionStore that logs and discards
// every record.
func NewNoopStore(logger commons.Logger) InteractionStore {
	return &noopStore{logger: logger.With("component", "store.Noop")}
}

func (s *noopStore) Save(ctx context.Context, record *InteractionRecord) error {
	s.logger.Warnw("interaction store not configured, dropping record", "unique_id", record.UniqueID)
	return nil
}
