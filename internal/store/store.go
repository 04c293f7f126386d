// Package store is the persistence boundary for buildings and email logs.
package store

import (
	"context"

	"github.com/sells-group/outreach-cli/internal/model"
)

// BuildingFilter narrows ListBuildings results.
type BuildingFilter struct {
	States []model.BuildingState
	Limit  int
	Offset int
}

// Store defines persistence for the outreach pipeline.
//
// CreateBuilding fails with a resilience.ConsistencyError if the identity
// key already exists: discovery is expected to dedupe before insert, so a
// duplicate reaching the store means the lock discipline broke.
//
// EmailLog rows are append-only; the only in-place mutations are the
// delivery-status transition pending→sent|failed and the replied flag set
// by the reconciliation sweep.
type Store interface {
	CreateBuilding(ctx context.Context, b *model.Building) error
	GetBuilding(ctx context.Context, id string) (*model.Building, error)
	GetBuildingByIdentityKey(ctx context.Context, key string) (*model.Building, error)
	ListBuildings(ctx context.Context, filter BuildingFilter) ([]model.Building, error)
	UpdateBuilding(ctx context.Context, b *model.Building) error
	DeleteBuilding(ctx context.Context, id string) error
	CountByState(ctx context.Context) (map[model.BuildingState]int, error)

	AppendEmailLog(ctx context.Context, log *model.EmailLog) error
	// UpdateEmailLogStatus finalizes a pending row. threadID is the
	// transport thread assigned on a successful send; empty on failure.
	UpdateEmailLogStatus(ctx context.Context, id string, status model.DeliveryStatus, threadID string) error
	ListEmailLogs(ctx context.Context, buildingIdentityKey string) ([]model.EmailLog, error)
	ListEmailLogsAwaitingReply(ctx context.Context) ([]model.EmailLog, error)
	MarkEmailLogReplied(ctx context.Context, threadID string) error

	Migrate(ctx context.Context) error
	Close() error
}
