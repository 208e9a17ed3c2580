package database

import (
	"context"
	"domain-lifecycle/internal/models"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is the row-level access layer for domain records. Every state change
// goes through ApplyChange so the record update and its audit entry commit together.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store on top of an open database
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for wiring other repositories
func (s *Store) DB() *gorm.DB {
	return s.db
}

// DomainFilter narrows ListDomains
type DomainFilter struct {
	Status *models.Status
	Limit  int
}

// CreateDomain inserts a new record. It fails with ErrDuplicate when the
// (domain_name, extension) pair is taken.
func (s *Store) CreateDomain(ctx context.Context, rec *models.DomainRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Version = 1

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.DomainRecord{}).
			Where("domain_name = ? AND extension = ?", rec.DomainName, rec.Extension).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}
		if err := tx.Create(rec).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		return nil
	})
}

// GetDomain loads a record by id
func (s *Store) GetDomain(ctx context.Context, id string) (*models.DomainRecord, error) {
	var rec models.DomainRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// FindByName loads a record by its domain name and extension
func (s *Store) FindByName(ctx context.Context, name, extension string) (*models.DomainRecord, error) {
	var rec models.DomainRecord
	err := s.db.WithContext(ctx).
		Where("domain_name = ? AND extension = ?", name, extension).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ListDomains returns records ordered by name, optionally filtered by status
func (s *Store) ListDomains(ctx context.Context, filter DomainFilter) ([]models.DomainRecord, error) {
	query := s.db.WithContext(ctx).Order("domain_name asc, extension asc")
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var domains []models.DomainRecord
	if err := query.Find(&domains).Error; err != nil {
		return nil, err
	}
	return domains, nil
}

// ListNotInStatus returns every record whose status is not one of excluded
func (s *Store) ListNotInStatus(ctx context.Context, excluded ...models.Status) ([]models.DomainRecord, error) {
	query := s.db.WithContext(ctx).Order("domain_name asc, extension asc")
	if len(excluded) > 0 {
		query = query.Where("status NOT IN ?", excluded)
	}

	var domains []models.DomainRecord
	if err := query.Find(&domains).Error; err != nil {
		return nil, err
	}
	return domains, nil
}

// ApplyChange writes rec over the stored row and appends entry, atomically.
// The write only lands if the stored version still equals rec.Version; on
// success rec.Version is advanced. Identity and ownership columns are never written.
func (s *Store) ApplyChange(ctx context.Context, rec *models.DomainRecord, entry *models.SyncLogEntry) error {
	now := time.Now().UTC()
	expected := rec.Version

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.DomainRecord{}).
			Where("id = ? AND version = ?", rec.ID, expected).
			Updates(map[string]interface{}{
				"status":         rec.Status,
				"expiry_date":    rec.ExpiryDate,
				"expiry_source":  rec.ExpirySource,
				"auto_renew":     rec.AutoRenew,
				"nameservers":    rec.Nameservers,
				"locked":         rec.Locked,
				"auth_code":      rec.AuthCode,
				"last_synced_at": rec.LastSyncedAt,
				"version":        expected + 1,
				"updated_at":     now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.DomainRecord{}).Where("id = ?", rec.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrStaleWrite
		}

		if entry != nil {
			entry.DomainID = rec.ID
			return insertEntry(tx, entry)
		}
		return nil
	})
	if err != nil {
		return err
	}

	rec.Version = expected + 1
	rec.UpdatedAt = now
	return nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// insertEntry appends entry to the hash chain. tx must be a transaction so the
// tail read and the insert cannot interleave with another append.
func insertEntry(tx *gorm.DB, entry *models.SyncLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC().Truncate(time.Microsecond)
	if entry.DomainID == "" {
		return fmt.Errorf("sync log entry without domain id")
	}

	var tail models.SyncLogEntry
	if err := tx.Select("seq", "hash").Order("seq desc").Limit(1).Find(&tail).Error; err != nil {
		return fmt.Errorf("failed to read sync log tail: %w", err)
	}
	entry.Seq = tail.Seq + 1
	entry.PrevHash = tail.Hash
	entry.Hash = entry.ComputeHash()
	return tx.Create(entry).Error
}
