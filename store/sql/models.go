package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type fulfillmentEventRecord struct {
	bun.BaseModel `bun:"table:fulfillment_events,alias:fe"`

	ID             string     `bun:"id,pk"`
	EventID        string     `bun:"event_id,notnull,unique"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	Payload        []byte     `bun:"payload"`
	LastError      string     `bun:"last_error"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
