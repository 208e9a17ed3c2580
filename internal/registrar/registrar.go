// Package registrar defines the capability set the engine needs from an
// upstream domain registrar, plus an HTTP implementation of it.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"domain-lifecycle/internal/models"
)

// StatusInfo is the registrar's canonical view of a domain
type StatusInfo struct {
	Status      models.Status
	ExpiryDate  time.Time
	Nameservers []string
	Locked      bool
}

// RenewResult carries the expiry date after a successful renewal
type RenewResult struct {
	NewExpiryDate time.Time
}

// UnlockResult carries the transfer authorization code issued by the registrar
type UnlockResult struct {
	AuthCode string
}

// Registrar is the narrow upstream interface the engine depends on
type Registrar interface {
	CheckStatus(ctx context.Context, domainName string) (*StatusInfo, error)
	Renew(ctx context.Context, domainName string, years int) (*RenewResult, error)
	UnlockForTransfer(ctx context.Context, domainName string) (*UnlockResult, error)
}

// ErrUnknownRegistrar is returned when no registrar is configured under a name
var ErrUnknownRegistrar = errors.New("unknown registrar")

// DefaultTimeout bounds a registrar call when none is configured
const DefaultTimeout = 15 * time.Second

// Registry resolves a record's registrar_name to a Registrar and its call timeout
type Registry struct {
	mu         sync.RWMutex
	registrars map[string]Registrar
	timeouts   map[string]time.Duration
	fallback   string
}

// NewRegistry creates an empty registry. fallback names the registrar used
// for records that carry no registrar name; empty disables it.
func NewRegistry(fallback string) *Registry {
	return &Registry{
		registrars: make(map[string]Registrar),
		timeouts:   make(map[string]time.Duration),
		fallback:   fallback,
	}
}

// Register adds or replaces a registrar under name. A non-positive timeout means DefaultTimeout.
func (r *Registry) Register(name string, reg Registrar, timeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrars[name] = reg
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r.timeouts[name] = timeout
}

// resolve maps an empty name onto the fallback. Unknown names stay unknown.
func (r *Registry) resolve(name string) string {
	if name == "" {
		return r.fallback
	}
	return name
}

// Has reports whether a registrar is configured under exactly name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.registrars[name]
	return ok
}

// Get returns the registrar for name
func (r *Registry) Get(name string) (Registrar, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reg, ok := r.registrars[r.resolve(name)]; ok {
		return reg, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRegistrar, name)
}

// Timeout returns the call timeout for name, following the same fallback as Get
func (r *Registry) Timeout(name string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.timeouts[r.resolve(name)]; ok {
		return d
	}
	return DefaultTimeout
}

// Names lists the configured registrar names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.registrars))
	for name := range r.registrars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// statusAliases maps common registrar and EPP vocabulary onto engine statuses
var statusAliases = map[string]models.Status{
	"ok":                       models.StatusActive,
	"registered":               models.StatusActive,
	"clienttransferprohibited": models.StatusActive,
	"pendingcreate":            models.StatusPendingRegistration,
	"pendingrenew":             models.StatusPendingRenewal,
	"autorenewperiod":          models.StatusGracePeriod,
	"renewperiod":              models.StatusActive,
	"redemptionperiod":         models.StatusRedemption,
	"pendingdelete":            models.StatusRedemption,
	"pendingrestore":           models.StatusRedemption,
	"deleted":                  models.StatusCancelled,
	"pendingtransfer":          models.StatusTransferOut,
	"transferred":              models.StatusCancelled,
}

// ParseStatus maps a registrar status string to an engine status
func ParseStatus(raw string) (models.Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if status, err := models.ParseStatus(normalized); err == nil {
		return status, nil
	}
	key := strings.NewReplacer("_", "", "-", "", " ", "").Replace(normalized)
	if status, ok := statusAliases[key]; ok {
		return status, nil
	}
	return "", fmt.Errorf("unrecognized registrar status %q", raw)
}
