package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	ClaimStatusProcessing = "processing"
	ClaimStatusProcessed  = "processed"
	ClaimStatusRetryReady = "retry_ready"
)

const defaultClaimLease = 30 * time.Second
const defaultLedgerMaxEntries = 8192

// MemoryEventLedger is the in-process EventLedger used when no durable store
// is wired. Completed claims are retained until capacity pressure evicts them,
// so redeliveries within a process lifetime dedupe correctly.
type MemoryEventLedger struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]memoryClaimEntry
	claims     map[string]string
	nextID     int
	Now        func() time.Time
}

type memoryClaimEntry struct {
	EventID        string
	Status         string
	ClaimID        string
	Attempts       int
	LeaseExpiresAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewMemoryEventLedger() *MemoryEventLedger {
	return &MemoryEventLedger{
		maxEntries: defaultLedgerMaxEntries,
		entries:    map[string]memoryClaimEntry{},
		claims:     map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryEventLedger) Claim(
	_ context.Context,
	eventID string,
	_ []byte,
	lease time.Duration,
) (EventClaim, bool, error) {
	if l == nil {
		return EventClaim{}, false, fmt.Errorf("core: event ledger is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return EventClaim{}, false, fmt.Errorf("core: event id is required for dedupe")
	}
	if lease <= 0 {
		lease = defaultClaimLease
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.entries[eventID]
	if exists {
		switch entry.Status {
		case ClaimStatusProcessed:
			return toEventClaim(entry), false, nil
		case ClaimStatusProcessing:
			if now.Before(entry.LeaseExpiresAt) {
				return toEventClaim(entry), false, nil
			}
		}
		delete(l.claims, entry.ClaimID)
		entry.Status = ClaimStatusProcessing
		entry.ClaimID = l.nextClaimID()
		entry.Attempts++
		entry.LeaseExpiresAt = now.Add(lease)
		entry.UpdatedAt = now
		l.entries[eventID] = entry
		l.claims[entry.ClaimID] = eventID
		return toEventClaim(entry), true, nil
	}

	l.enforceCapacityLocked()
	entry = memoryClaimEntry{
		EventID:        eventID,
		Status:         ClaimStatusProcessing,
		ClaimID:        l.nextClaimID(),
		Attempts:       1,
		LeaseExpiresAt: now.Add(lease),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	l.entries[eventID] = entry
	l.claims[entry.ClaimID] = eventID
	return toEventClaim(entry), true, nil
}

func (l *MemoryEventLedger) Complete(_ context.Context, claimID string) error {
	return l.transition(claimID, ClaimStatusProcessed)
}

func (l *MemoryEventLedger) Fail(_ context.Context, claimID string, _ error) error {
	return l.transition(claimID, ClaimStatusRetryReady)
}

func (l *MemoryEventLedger) transition(claimID string, status string) error {
	if l == nil {
		return fmt.Errorf("core: event ledger is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("core: claim id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	eventID, ok := l.claims[claimID]
	if !ok {
		return nil
	}
	entry, exists := l.entries[eventID]
	if !exists || entry.ClaimID != claimID || entry.Status != ClaimStatusProcessing {
		delete(l.claims, claimID)
		return nil
	}
	entry.Status = status
	entry.UpdatedAt = l.now()
	if status != ClaimStatusProcessing {
		entry.LeaseExpiresAt = time.Time{}
	}
	l.entries[eventID] = entry
	delete(l.claims, claimID)
	return nil
}

func (l *MemoryEventLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemoryEventLedger) nextClaimID() string {
	l.nextID++
	return fmt.Sprintf("claim_%d", l.nextID)
}

func (l *MemoryEventLedger) enforceCapacityLocked() {
	if l.maxEntries <= 0 || len(l.entries) < l.maxEntries {
		return
	}
	var oldestKey string
	var oldestAt time.Time
	for key, entry := range l.entries {
		if entry.Status == ClaimStatusProcessing {
			continue
		}
		if oldestKey == "" || entry.UpdatedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.UpdatedAt
		}
	}
	if oldestKey == "" {
		return
	}
	if entry, ok := l.entries[oldestKey]; ok {
		delete(l.claims, entry.ClaimID)
	}
	delete(l.entries, oldestKey)
}

func toEventClaim(entry memoryClaimEntry) EventClaim {
	return EventClaim{
		ClaimID:   entry.ClaimID,
		EventID:   entry.EventID,
		Status:    entry.Status,
		Attempts:  entry.Attempts,
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
	}
}

var _ EventLedger = (*MemoryEventLedger)(nil)
