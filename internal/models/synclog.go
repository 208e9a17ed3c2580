package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// SyncType classifies a sync log entry
type SyncType string

const (
	SyncTypeRenew       SyncType = "renew"
	SyncTypeStatusCheck SyncType = "status_check"
	SyncTypeExpirySync  SyncType = "expiry_sync"
	SyncTypeTransfer    SyncType = "transfer"
)

// SyncStatus is the outcome of a logged interaction
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusFailure SyncStatus = "failure"
)

// SyncOrigin tells whether a logged fact came from the registrar, an admin, or the scheduler
type SyncOrigin string

const (
	OriginRegistrar     SyncOrigin = "registrar"
	OriginAdminOverride SyncOrigin = "admin_override"
	OriginScheduler     SyncOrigin = "scheduler"
)

// SystemActor is the actor recorded for automated operations
const SystemActor = "system"

// SyncLogEntry is an append-only audit row for a registrar interaction or state change
type SyncLogEntry struct {
	ID           string     `gorm:"primarykey;size:36" json:"id"`
	DomainID     string     `gorm:"not null;index" json:"domain_id"`
	SyncType     SyncType   `gorm:"not null" json:"sync_type"`
	Status       SyncStatus `gorm:"not null" json:"status"`
	Origin       SyncOrigin `gorm:"not null" json:"origin"`
	Actor        string     `json:"actor"`
	Detail       string     `json:"detail"`
	ErrorMessage *string    `json:"error_message"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`

	// Each entry commits to its predecessor, so edited or removed rows break the chain
	Seq      int64  `gorm:"not null;uniqueIndex" json:"seq"`
	PrevHash string `gorm:"size:64" json:"prev_hash"`
	Hash     string `gorm:"size:64;not null" json:"hash"`
}

// syncLogHashDomain prefixes every entry hash; bump the version to change the layout
const syncLogHashDomain = "domain-lifecycle/synclog/v1"

// ComputeHash returns the hex SHA-256 over the entry's content and PrevHash.
// CreatedAt is hashed in UTC at microsecond precision.
func (e *SyncLogEntry) ComputeHash() string {
	content, _ := json.Marshal(struct {
		Seq          int64      `json:"seq"`
		ID           string     `json:"id"`
		DomainID     string     `json:"domain_id"`
		SyncType     SyncType   `json:"sync_type"`
		Status       SyncStatus `json:"status"`
		Origin       SyncOrigin `json:"origin"`
		Actor        string     `json:"actor"`
		Detail       string     `json:"detail"`
		ErrorMessage *string    `json:"error_message"`
		CreatedAt    string     `json:"created_at"`
		PrevHash     string     `json:"prev_hash"`
	}{
		Seq:          e.Seq,
		ID:           e.ID,
		DomainID:     e.DomainID,
		SyncType:     e.SyncType,
		Status:       e.Status,
		Origin:       e.Origin,
		Actor:        e.Actor,
		Detail:       e.Detail,
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    e.CreatedAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano),
		PrevHash:     e.PrevHash,
	})
	h := sha256.New()
	h.Write([]byte(syncLogHashDomain))
	h.Write([]byte{0x00})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// Succeeded reports whether the entry records a success
func (e *SyncLogEntry) Succeeded() bool {
	return e.Status == SyncStatusSuccess
}
