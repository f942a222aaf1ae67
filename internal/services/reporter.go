package services

import (
	"errors"

	"subhub/internal/models"

	"gorm.io/gorm"
)

// Reporter provides read-only aggregation over donated domains and their
// claims. Every domain it returns is the redacted DomainView projection.
type Reporter struct {
	db *gorm.DB
}

// NewReporter creates a usage reporter
func NewReporter(db *gorm.DB) *Reporter {
	return &Reporter{db: db}
}

// ListAvailable returns active domains with spare capacity, ordered by
// remaining headroom so lightly used namespaces surface first.
func (r *Reporter) ListAvailable() ([]models.DomainView, error) {
	var domains []models.DonatedDomain
	err := r.db.
		Where("is_active = ? AND current_subdomains < max_subdomains", true).
		Order("max_subdomains - current_subdomains desc").
		Find(&domains).Error
	if err != nil {
		return nil, Wrap(KindExternalService, "listing domains failed", err)
	}
	return views(domains), nil
}

// ListOwned returns all domains donated by ownerID, including inactive ones
func (r *Reporter) ListOwned(ownerID uint) ([]models.DomainView, error) {
	var domains []models.DonatedDomain
	err := r.db.
		Where("owner_id = ?", ownerID).
		Order("created_at asc").
		Find(&domains).Error
	if err != nil {
		return nil, Wrap(KindExternalService, "listing domains failed", err)
	}
	return views(domains), nil
}

// DomainUsage is the owner's management view of a domain and its claims
type DomainUsage struct {
	Domain models.DomainView       `json:"domain"`
	Claims []models.SubdomainClaim `json:"claims"`
}

// UsageStats returns the claims under a domain. Owner authorization is
// enforced at the HTTP boundary.
func (r *Reporter) UsageStats(domainID uint) (*DomainUsage, error) {
	var domain models.DonatedDomain
	if err := r.db.First(&domain, domainID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, E(KindNotFound, "domain not found")
		}
		return nil, Wrap(KindExternalService, "loading domain failed", err)
	}

	var claims []models.SubdomainClaim
	err := r.db.
		Where("domain_id = ?", domainID).
		Order("created_at asc").
		Find(&claims).Error
	if err != nil {
		return nil, Wrap(KindExternalService, "listing claims failed", err)
	}

	return &DomainUsage{Domain: domain.View(), Claims: claims}, nil
}

func views(domains []models.DonatedDomain) []models.DomainView {
	out := make([]models.DomainView, 0, len(domains))
	for i := range domains {
		out = append(out, domains[i].View())
	}
	return out
}
