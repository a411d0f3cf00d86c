// Package model defines the records managed by the synchronization engine:
// products, stock movements, and categories.
//
// Every record carries two timestamps used for last-write-wins conflict
// resolution: CreatedAt and UpdatedAt. Products additionally carry a
// client-generated UID assigned at first write, so a record has a globally
// unique identity before it has ever been uploaded, and an optional RemoteID
// that links it 1:1 to its counterpart in the canonical remote store.
package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// validate is the shared validator instance for struct tag checks.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Product is an inventory record.
//
// ID is the local store identifier, stable for the record's local lifetime.
// RemoteID is empty until the record has been successfully pushed; an empty
// RemoteID means the record is pending upload.
type Product struct {
	ID       int64  `json:"id"`
	UID      string `json:"uid"`
	RemoteID string `json:"remote_id,omitempty"`

	Name        string  `json:"name" validate:"required,max=200"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price" validate:"gte=0"`
	Quantity    int64   `json:"quantity" validate:"gte=0"`
	Category    string  `json:"category" validate:"required"`

	// ScanCode is the globally unique code printed on the product label.
	// It is the secondary key used to re-link local and remote records
	// when identifiers diverge.
	ScanCode string `json:"scan_code"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks field constraints. It does not check uniqueness; the
// store's indexes enforce that.
func (p *Product) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid product: %w", err)
	}
	return nil
}

// SetDefaults fills identity and timestamp fields that are assigned at
// first write. Safe to call on records that already have them.
func (p *Product) SetDefaults() {
	if p.UID == "" {
		p.UID = uuid.NewString()
	}
	if p.ScanCode == "" {
		p.ScanCode = NewScanCode()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
}

// Linked reports whether the product has a remote counterpart.
func (p *Product) Linked() bool {
	return p.RemoteID != ""
}

// NaturalKey derives the matching key used to link records that have no
// identifier relation: name (case-folded) + category + price in cents.
// Two distinct products sharing all three fields are indistinguishable to
// the reconciler, which is why records also carry a UID from first write.
func (p *Product) NaturalKey() string {
	return NaturalKey(p.Name, p.Category, p.Price)
}

// NaturalKey builds the derived matching key from its parts.
func NaturalKey(name, category string, price float64) string {
	cents := int64(math.Round(price * 100))
	return fmt.Sprintf("%s|%s|%d", strings.ToLower(strings.TrimSpace(name)), category, cents)
}

// NewScanCode generates a scan code in the same shape the original labels
// use: SP-<unix millis>-<token>.
func NewScanCode() string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
	return fmt.Sprintf("SP-%d-%s", time.Now().UnixMilli(), token)
}

// ProductPatch is a partial update. Only non-nil fields are applied by the
// store's read-modify-write merge.
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *float64
	Quantity    *int64
	Category    *string
	ScanCode    *string
	RemoteID    *string

	// UpdatedAt overrides the merge timestamp when set. The reconciler
	// uses this to carry the remote's authoritative modification time;
	// user edits leave it nil and get stamped with the current time.
	UpdatedAt *time.Time
}

// Empty reports whether the patch changes nothing.
func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil &&
		p.Quantity == nil && p.Category == nil && p.ScanCode == nil &&
		p.RemoteID == nil && p.UpdatedAt == nil
}
