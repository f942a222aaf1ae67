package models

import (
	"time"
)

// DonatedDomain represents a domain contributed by a user as a shared
// subdomain namespace. ZoneID and APIToken are the Cloudflare credentials
// for the domain's zone; they are excluded from JSON and must additionally
// never leave the process except through View().
type DonatedDomain struct {
	ID                uint      `gorm:"primarykey" json:"id"`
	DomainName        string    `gorm:"uniqueIndex;not null" json:"domain_name"`
	OwnerID           uint      `gorm:"index;not null" json:"owner_id"`
	ZoneID            string    `gorm:"not null" json:"-"`
	APIToken          string    `gorm:"not null" json:"-"`
	MaxSubdomains     int       `gorm:"not null" json:"max_subdomains"`
	CurrentSubdomains int       `gorm:"not null;default:0" json:"current_subdomains"`
	IsActive          bool      `gorm:"default:false" json:"is_active"`
	DonationMessage   string    `json:"donation_message"`
	ContactEmail      string    `json:"contact_email"`
	TermsOfUse        string    `json:"terms_of_use"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DomainView is the external-safe projection of a DonatedDomain. The
// credential fields do not exist on this type, so a handler that returns
// views cannot leak them by accident.
type DomainView struct {
	ID                uint      `json:"id"`
	DomainName        string    `json:"domain_name"`
	OwnerID           uint      `json:"owner_id"`
	MaxSubdomains     int       `json:"max_subdomains"`
	CurrentSubdomains int       `json:"current_subdomains"`
	IsActive          bool      `json:"is_active"`
	DonationMessage   string    `json:"donation_message"`
	ContactEmail      string    `json:"contact_email"`
	TermsOfUse        string    `json:"terms_of_use"`
	CreatedAt         time.Time `json:"created_at"`
}

// View returns the redacted projection of the domain
func (d *DonatedDomain) View() DomainView {
	return DomainView{
		ID:                d.ID,
		DomainName:        d.DomainName,
		OwnerID:           d.OwnerID,
		MaxSubdomains:     d.MaxSubdomains,
		CurrentSubdomains: d.CurrentSubdomains,
		IsActive:          d.IsActive,
		DonationMessage:   d.DonationMessage,
		ContactEmail:      d.ContactEmail,
		TermsOfUse:        d.TermsOfUse,
		CreatedAt:         d.CreatedAt,
	}
}

// SubdomainClaim represents a reserved subdomain label under a donated
// domain. Label is stored lower-cased; the composite unique index is the
// authoritative arbiter between concurrent claims for the same label.
type SubdomainClaim struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	DomainID  uint      `gorm:"uniqueIndex:idx_domain_label;not null" json:"domain_id"`
	Label     string    `gorm:"uniqueIndex:idx_domain_label;not null" json:"label"`
	ClaimedBy uint      `gorm:"index;not null" json:"claimed_by"`
	RecordID  string    `json:"-"` // Cloudflare DNS record ID
	CreatedAt time.Time `json:"created_at"`
}

// OrphanRecord tracks a DNS record that exists in Cloudflare without a
// corresponding claim row (a failed rollback or a persist failure after
// record creation). Unresolved rows are retried by the reconciler sweep.
type OrphanRecord struct {
	ID         uint       `gorm:"primarykey" json:"id"`
	DomainID   uint       `gorm:"index;not null" json:"domain_id"`
	Label      string     `json:"label"`
	RecordID   string     `json:"record_id"`
	Reason     string     `json:"reason"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `gorm:"index" json:"resolved_at"`
}

// Notification represents a delivered (or attempted) owner notification
type Notification struct {
	ID       uint      `gorm:"primarykey" json:"id"`
	DomainID uint      `json:"domain_id"`
	Type     string    `json:"type"`  // Notifier channel
	Event    string    `json:"event"` // subdomain_claimed / orphan_flagged
	Content  string    `json:"content"`
	Status   string    `json:"status"` // success/failed
	SentAt   time.Time `json:"sent_at"`
}

// User represents a user account
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"not null" json:"-"` // bcrypt hash
	Email     string    `json:"email"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
