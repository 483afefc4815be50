// Package sqlstore persists the webhook event ledger with bun. The ledger
// fences duplicate deliveries via a unique insert on the provider event id;
// losing the insert race means another worker holds the claim.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-fulfillment/core"
)

const defaultEventLease = 30 * time.Second

type EventLedgerStore struct {
	db   *bun.DB
	repo repository.Repository[*fulfillmentEventRecord]

	// Now is overridable for tests.
	Now func() time.Time
}

func NewEventLedgerStore(db *bun.DB) (*EventLedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*fulfillmentEventRecord](db, fulfillmentEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid fulfillment event repository wiring: %w", err)
		}
	}
	return &EventLedgerStore{
		db:   db,
		repo: repo,
		Now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Claim reserves an event for processing. The fresh-insert path wins the
// claim outright; on a unique violation the existing row decides: processed
// rows and live processing leases stay claimed, expired leases and
// retry_ready rows are reclaimed with a conditional update.
func (s *EventLedgerStore) Claim(
	ctx context.Context,
	eventID string,
	payload []byte,
	lease time.Duration,
) (core.EventClaim, bool, error) {
	if s == nil || s.db == nil {
		return core.EventClaim{}, false, fmt.Errorf("sqlstore: event ledger store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return core.EventClaim{}, false, fmt.Errorf("sqlstore: event id is required")
	}
	if lease <= 0 {
		lease = defaultEventLease
	}
	now := s.now()
	leaseExpiresAt := now.Add(lease)

	record := &fulfillmentEventRecord{
		ID:             uuid.NewString(),
		EventID:        eventID,
		Status:         core.ClaimStatusProcessing,
		Attempts:       1,
		Payload:        append([]byte(nil), payload...),
		LeaseExpiresAt: &leaseExpiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return core.EventClaim{}, false, err
		}
		return s.reclaim(ctx, eventID, now, leaseExpiresAt)
	}
	return eventToClaim(record), true, nil
}

func (s *EventLedgerStore) reclaim(
	ctx context.Context,
	eventID string,
	now time.Time,
	leaseExpiresAt time.Time,
) (core.EventClaim, bool, error) {
	existing, err := s.get(ctx, eventID)
	if err != nil {
		return core.EventClaim{}, false, err
	}
	switch existing.Status {
	case core.ClaimStatusProcessed:
		return core.EventClaim{}, false, nil
	case core.ClaimStatusProcessing:
		if existing.LeaseExpiresAt != nil && now.Before(*existing.LeaseExpiresAt) {
			return core.EventClaim{}, false, nil
		}
	}

	// Conditional reclaim: a concurrent worker may have refreshed the lease
	// between the read above and this update.
	res, err := s.db.NewUpdate().
		Model((*fulfillmentEventRecord)(nil)).
		Set("status = ?", core.ClaimStatusProcessing).
		Set("attempts = ?", existing.Attempts+1).
		Set("lease_expires_at = ?", leaseExpiresAt).
		Set("updated_at = ?", now).
		Where("event_id = ?", eventID).
		Where("status = ?", existing.Status).
		Where("updated_at = ?", existing.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return core.EventClaim{}, false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.EventClaim{}, false, err
	}
	if affected == 0 {
		return core.EventClaim{}, false, nil
	}

	claimed, err := s.get(ctx, eventID)
	if err != nil {
		return core.EventClaim{}, false, err
	}
	return eventToClaim(claimed), true, nil
}

func (s *EventLedgerStore) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event ledger store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*fulfillmentEventRecord)(nil)).
		Set("status = ?", core.ClaimStatusProcessed).
		Set("lease_expires_at = NULL").
		Set("last_error = ''").
		Set("updated_at = ?", s.now()).
		Where("id = ?", claimID).
		Where("status = ?", core.ClaimStatusProcessing).
		Exec(ctx)
	return err
}

func (s *EventLedgerStore) Fail(ctx context.Context, claimID string, cause error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event ledger store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	_, err := s.db.NewUpdate().
		Model((*fulfillmentEventRecord)(nil)).
		Set("status = ?", core.ClaimStatusRetryReady).
		Set("lease_expires_at = NULL").
		Set("last_error = ?", lastError).
		Set("updated_at = ?", s.now()).
		Where("id = ?", claimID).
		Where("status = ?", core.ClaimStatusProcessing).
		Exec(ctx)
	return err
}

func (s *EventLedgerStore) get(ctx context.Context, eventID string) (*fulfillmentEventRecord, error) {
	record := &fulfillmentEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("sqlstore: fulfillment event not found for event %q", eventID)
		}
		return nil, err
	}
	return record, nil
}

func (s *EventLedgerStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func eventToClaim(record *fulfillmentEventRecord) core.EventClaim {
	if record == nil {
		return core.EventClaim{}
	}
	return core.EventClaim{
		ClaimID:   record.ID,
		EventID:   record.EventID,
		Status:    record.Status,
		Attempts:  record.Attempts,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.EventLedger = (*EventLedgerStore)(nil)
