package sqlstore

import (
	"fmt"

	"github.com/uptrace/bun"
)

// NewEventLedgerFromClient accepts either a *bun.DB or any persistence client
// exposing DB() *bun.DB (go-persistence-bun's Client does).
func NewEventLedgerFromClient(client any) (*EventLedgerStore, error) {
	db, err := resolveBunDB(client)
	if err != nil {
		return nil, err
	}
	return NewEventLedgerStore(db)
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
