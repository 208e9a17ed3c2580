package database

import (
	"context"
	"domain-lifecycle/internal/models"
	"fmt"

	"gorm.io/gorm"
)

// verifyBatch is how many entries Verify loads per query
const verifyBatch = 500

// SyncLogRecorder appends audit entries. It deliberately has no update or delete.
type SyncLogRecorder struct {
	db *gorm.DB
}

// NewSyncLogRecorder creates a recorder on top of an open database
func NewSyncLogRecorder(db *gorm.DB) *SyncLogRecorder {
	return &SyncLogRecorder{db: db}
}

// Append stores entry on its own. Use Store.ApplyChange when a record changes too.
func (r *SyncLogRecorder) Append(ctx context.Context, entry *models.SyncLogEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertEntry(tx, entry)
	})
}

// Verify walks the whole log in sequence order and recomputes every hash.
// It returns the number of intact entries and ErrChainBroken at the first
// entry that was edited, removed or reordered.
func (r *SyncLogRecorder) Verify(ctx context.Context) (int64, error) {
	var (
		verified int64
		prevHash string
		lastSeq  int64
	)
	for {
		var batch []models.SyncLogEntry
		err := r.db.WithContext(ctx).
			Where("seq > ?", lastSeq).
			Order("seq asc").
			Limit(verifyBatch).
			Find(&batch).Error
		if err != nil {
			return verified, err
		}
		for i := range batch {
			e := &batch[i]
			switch {
			case e.Seq != lastSeq+1:
				return verified, fmt.Errorf("%w: entry %d missing before seq %d", ErrChainBroken, lastSeq+1, e.Seq)
			case e.PrevHash != prevHash:
				return verified, fmt.Errorf("%w: seq %d does not link to its predecessor", ErrChainBroken, e.Seq)
			case e.ComputeHash() != e.Hash:
				return verified, fmt.Errorf("%w: seq %d (%s) was modified", ErrChainBroken, e.Seq, e.ID)
			}
			prevHash = e.Hash
			lastSeq = e.Seq
			verified++
		}
		if len(batch) < verifyBatch {
			return verified, nil
		}
	}
}

// List returns entries newest first, optionally for a single domain
func (r *SyncLogRecorder) List(ctx context.Context, domainID string, limit int) ([]models.SyncLogEntry, error) {
	query := r.db.WithContext(ctx).Order("created_at desc, id desc")
	if domainID != "" {
		query = query.Where("domain_id = ?", domainID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []models.SyncLogEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns the number of entries for a domain
func (r *SyncLogRecorder) Count(ctx context.Context, domainID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SyncLogEntry{}).
		Where("domain_id = ?", domainID).
		Count(&count).Error
	return count, err
}
