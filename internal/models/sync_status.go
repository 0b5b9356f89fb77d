package models

import "time"

// SyncStatus reports the sync worker's progress for the health endpoint
type SyncStatus struct {
	Running        bool       `json:"running"`
	Checkpoint     uint64     `json:"checkpoint"`
	HeadBlock      uint64     `json:"headBlock"`
	LastPollAt     *time.Time `json:"lastPollAt,omitempty"`
	LastBackfillAt *time.Time `json:"lastBackfillAt,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	Cycles         uint64     `json:"cycles"`
}
