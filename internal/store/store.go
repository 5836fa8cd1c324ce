// ABOUTME: Scan history store interface and record types
// ABOUTME: Records one row per completed scan for the get_scan_history tool

package store

import (
	"context"
	"time"
)

// ScanStatus records the outcome of a scan as observed by the tool layer.
type ScanStatus string

const (
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// ScanRecord is one entry in the scan history ledger.
type ScanRecord struct {
	ID        string
	SessionID string
	Tool      string
	Target    string // contract address, repo URL, directory, or file name
	Status    ScanStatus
	Detail    string // short human-readable outcome note
	CreatedAt time.Time
}

// Store persists scan history. Implementations must be safe for concurrent
// use by multiple sessions.
type Store interface {
	RecordScan(ctx context.Context, record *ScanRecord) error
	ListRecent(ctx context.Context, limit int) ([]ScanRecord, error)
	Close() error
}
