package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle status of a registered domain
type Status string

const (
	StatusPendingRegistration Status = "pending_registration"
	StatusActive              Status = "active"
	StatusPendingRenewal      Status = "pending_renewal"
	StatusExpired             Status = "expired"
	StatusGracePeriod         Status = "grace_period"
	StatusRedemption          Status = "redemption"
	StatusCancelled           Status = "cancelled"
	StatusTransferIn          Status = "transfer_in"
	StatusTransferOut         Status = "transfer_out"
)

// AllStatuses lists every status value in lifecycle order
var AllStatuses = []Status{
	StatusPendingRegistration,
	StatusActive,
	StatusPendingRenewal,
	StatusExpired,
	StatusGracePeriod,
	StatusRedemption,
	StatusCancelled,
	StatusTransferIn,
	StatusTransferOut,
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus converts a loosely-typed string into a Status
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown domain status %q", s)
	}
	return status, nil
}

// ExpirySource records who asserted the current expiry date
type ExpirySource string

const (
	ExpirySourceRegistrar     ExpirySource = "registrar"
	ExpirySourceAdminOverride ExpirySource = "admin_override"
)

// Nameservers is an ordered nameserver list stored as a JSON array
type Nameservers []string

// Value implements driver.Valuer
func (n Nameservers) Value() (driver.Value, error) {
	if n == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(n))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (n *Nameservers) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*n = Nameservers{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported nameservers column type %T", value)
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to decode nameservers: %w", err)
	}
	*n = list
	return nil
}

// Equal compares two nameserver lists, order included
func (n Nameservers) Equal(other Nameservers) bool {
	if len(n) != len(other) {
		return false
	}
	for i := range n {
		if n[i] != other[i] {
			return false
		}
	}
	return true
}

// DomainRecord is the authoritative local record of a registered domain
type DomainRecord struct {
	ID               string       `gorm:"primarykey;size:36" json:"id"`
	DomainName       string       `gorm:"not null;uniqueIndex:idx_domain_name_ext" json:"domain_name"` // Second-level label, lower case
	Extension        string       `gorm:"not null;uniqueIndex:idx_domain_name_ext" json:"extension"`   // TLD without the leading dot
	Owner            string       `gorm:"not null;index" json:"owner"`                                 // Account reference
	Status           Status       `gorm:"not null;index" json:"status"`
	RegistrationDate time.Time    `json:"registration_date"`
	ExpiryDate       *time.Time   `json:"expiry_date"` // Null only while pending registration
	ExpirySource     ExpirySource `json:"expiry_source"`
	AutoRenew        bool         `json:"auto_renew"`
	Nameservers      Nameservers  `gorm:"type:text" json:"nameservers"`
	Locked           bool         `gorm:"not null" json:"locked"` // Registrar transfer lock
	AuthCode         *string      `json:"-"`                      // Secret, only set while unlocked
	RegistrarName    string       `gorm:"not null" json:"registrar_name"`
	Version          int64        `gorm:"not null;default:1" json:"version"`
	LastSyncedAt     *time.Time   `json:"last_synced_at"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// FQDN returns the fully qualified domain name
func (d *DomainRecord) FQDN() string {
	return d.DomainName + "." + d.Extension
}

// HasAuthCode reports whether an auth code is currently stored
func (d *DomainRecord) HasAuthCode() bool {
	return d.AuthCode != nil && *d.AuthCode != ""
}

// MarshalJSON adds has_auth_code to the JSON view without exposing the code
func (d DomainRecord) MarshalJSON() ([]byte, error) {
	type plain DomainRecord
	return json.Marshal(struct {
		plain
		HasAuthCode bool `json:"has_auth_code"`
	}{plain(d), d.HasAuthCode()})
}

// Clone returns a deep copy so callers can mutate without touching the original
func (d *DomainRecord) Clone() *DomainRecord {
	c := *d
	if d.ExpiryDate != nil {
		t := *d.ExpiryDate
		c.ExpiryDate = &t
	}
	if d.AuthCode != nil {
		s := *d.AuthCode
		c.AuthCode = &s
	}
	if d.LastSyncedAt != nil {
		t := *d.LastSyncedAt
		c.LastSyncedAt = &t
	}
	if d.Nameservers != nil {
		c.Nameservers = append(Nameservers{}, d.Nameservers...)
	}
	return &c
}

// User represents an admin account of the back office
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"` // Username
	Password  string    `gorm:"not null" json:"-"`                    // Hashed password (excluded from JSON)
	Email     string    `json:"email"`                                // Email
	IsActive  bool      `gorm:"default:true" json:"is_active"`        // Account status
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
