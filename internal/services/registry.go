package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"subhub/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// domainNamePattern accepts fully-qualified domain names: dot-separated
// alphanumeric labels with interior hyphens and an alphabetic TLD.
var domainNamePattern = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)

// Registry handles owner-scoped CRUD over donated domains plus the
// credential probe on submission.
type Registry struct {
	db         *gorm.DB
	zones      ZoneClient
	defaultMax int
	log        *zap.Logger
}

// NewRegistry creates a donated-domain registry
func NewRegistry(db *gorm.DB, zones ZoneClient, defaultMaxSubdomains int, log *zap.Logger) *Registry {
	return &Registry{db: db, zones: zones, defaultMax: defaultMaxSubdomains, log: log}
}

// SubmitDomainInput carries the owner-supplied fields of a donation
type SubmitDomainInput struct {
	DomainName      string
	ZoneID          string
	APIToken        string
	MaxSubdomains   int
	DonationMessage string
	ContactEmail    string
	TermsOfUse      string
}

// ValidateDomainName checks the donated domain name grammar
func ValidateDomainName(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) == 0 || len(name) > 253 || !domainNamePattern.MatchString(name) {
		return E(KindInvalidDomainName, "domain name is not a valid FQDN")
	}
	return nil
}

// SubmitDomain validates the domain name and zone credentials, then
// persists a new donated domain. New domains start inactive with zero
// usage; a separate owner action activates them.
func (r *Registry) SubmitDomain(ctx context.Context, ownerID uint, in SubmitDomainInput) (*models.DonatedDomain, error) {
	name := strings.ToLower(strings.TrimSpace(in.DomainName))
	if err := ValidateDomainName(name); err != nil {
		return nil, err
	}
	if in.ZoneID == "" || in.APIToken == "" {
		return nil, E(KindInvalidCredentials, "zone ID and API token are required")
	}

	creds := ZoneCredentials{ZoneID: in.ZoneID, APIToken: in.APIToken}
	if err := r.zones.VerifyZone(ctx, creds); err != nil {
		return nil, err
	}

	maxSub := in.MaxSubdomains
	if maxSub <= 0 {
		maxSub = r.defaultMax
	}

	domain := &models.DonatedDomain{
		DomainName:        name,
		OwnerID:           ownerID,
		ZoneID:            in.ZoneID,
		APIToken:          in.APIToken,
		MaxSubdomains:     maxSub,
		CurrentSubdomains: 0,
		IsActive:          false,
		DonationMessage:   in.DonationMessage,
		ContactEmail:      in.ContactEmail,
		TermsOfUse:        in.TermsOfUse,
	}

	if err := r.db.Create(domain).Error; err != nil {
		if IsDuplicateKey(err) {
			return nil, E(KindAlreadyTaken, "domain is already donated")
		}
		return nil, Wrap(KindExternalService, "persisting domain failed", err)
	}

	r.log.Info("domain donated",
		zap.String("domain", name),
		zap.Uint("owner_id", ownerID),
		zap.Int("max_subdomains", maxSub))

	return domain, nil
}

// GetDomain loads a donated domain by ID
func (r *Registry) GetDomain(domainID uint) (*models.DonatedDomain, error) {
	var domain models.DonatedDomain
	if err := r.db.First(&domain, domainID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, E(KindNotFound, "domain not found")
		}
		return nil, Wrap(KindExternalService, "loading domain failed", err)
	}
	return &domain, nil
}

// ToggleStatus flips the active flag. Owner authorization happens at the
// HTTP boundary with the session identity.
func (r *Registry) ToggleStatus(domainID uint, isActive bool) error {
	res := r.db.Model(&models.DonatedDomain{}).
		Where("id = ?", domainID).
		Update("is_active", isActive)
	if res.Error != nil {
		return Wrap(KindExternalService, "updating domain failed", res.Error)
	}
	if res.RowsAffected == 0 {
		return E(KindNotFound, "domain not found")
	}
	return nil
}

// DomainSettingsPatch carries optional display-metadata updates. Nil
// fields are left unchanged.
type DomainSettingsPatch struct {
	MaxSubdomains   *int
	DonationMessage *string
	ContactEmail    *string
	TermsOfUse      *string
}

// UpdateSettings applies a metadata patch to a donated domain. Capacity
// can never be lowered below the live claim count: current_subdomains
// must stay within max_subdomains.
func (r *Registry) UpdateSettings(domainID uint, patch DomainSettingsPatch) error {
	updates := map[string]interface{}{}
	if patch.MaxSubdomains != nil {
		if *patch.MaxSubdomains <= 0 {
			return E(KindInvalidFormat, "max_subdomains must be positive")
		}
		updates["max_subdomains"] = *patch.MaxSubdomains
	}
	if patch.DonationMessage != nil {
		updates["donation_message"] = *patch.DonationMessage
	}
	if patch.ContactEmail != nil {
		updates["contact_email"] = *patch.ContactEmail
	}
	if patch.TermsOfUse != nil {
		updates["terms_of_use"] = *patch.TermsOfUse
	}
	if len(updates) == 0 {
		return nil
	}

	q := r.db.Model(&models.DonatedDomain{}).Where("id = ?", domainID)
	if patch.MaxSubdomains != nil {
		q = q.Where("current_subdomains <= ?", *patch.MaxSubdomains)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return Wrap(KindExternalService, "updating domain failed", res.Error)
	}
	if res.RowsAffected == 0 {
		// Either the domain does not exist or the capacity guard above
		// matched nothing; look again to tell the two apart.
		if _, err := r.GetDomain(domainID); err != nil {
			return err
		}
		return E(KindInvalidFormat, "max_subdomains cannot be lower than current usage")
	}
	return nil
}
