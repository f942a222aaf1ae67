package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"subhub/internal/metrics"
	"subhub/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// labelPattern accepts alphanumeric labels with interior hyphens. Single
// characters are valid; leading or trailing hyphens are not.
var labelPattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)

const maxLabelLength = 63 // DNS label limit

// Allocator is the gatekeeper for the shared subdomain namespace of each
// donated domain. The availability check is an optimistic hint for user
// feedback; the unique index on (domain_id, label) is the authoritative
// arbiter between concurrent claims.
type Allocator struct {
	db     *gorm.DB
	zones  ZoneClient
	notify *NotifyService
	log    *zap.Logger
}

// NewAllocator creates a subdomain allocator
func NewAllocator(db *gorm.DB, zones ZoneClient, notify *NotifyService, log *zap.Logger) *Allocator {
	return &Allocator{db: db, zones: zones, notify: notify, log: log}
}

// ValidateLabel checks the subdomain label format
func ValidateLabel(label string) error {
	if len(label) == 0 || len(label) > maxLabelLength || !labelPattern.MatchString(label) {
		return E(KindInvalidFormat, "subdomain must be alphanumeric with interior hyphens only")
	}
	return nil
}

// activeDomain loads an active donated domain. Inactive domains are
// reported as NotFound so unlisted namespaces are not discoverable.
func (a *Allocator) activeDomain(domainID uint) (*models.DonatedDomain, error) {
	var domain models.DonatedDomain
	err := a.db.Where("id = ? AND is_active = ?", domainID, true).First(&domain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, E(KindNotFound, "domain not found")
		}
		return nil, Wrap(KindExternalService, "loading domain failed", err)
	}
	return &domain, nil
}

// CheckAvailability reports whether label is free under domainID. True
// requires a well-formed label, an active domain with spare capacity and
// no existing claim with a case-insensitive-equal label. No side effects.
func (a *Allocator) CheckAvailability(domainID uint, label string) (bool, error) {
	if err := ValidateLabel(label); err != nil {
		return false, err
	}

	domain, err := a.activeDomain(domainID)
	if err != nil {
		return false, err
	}

	return a.available(domain, label)
}

// available reports whether label is free under an already-loaded domain
func (a *Allocator) available(domain *models.DonatedDomain, label string) (bool, error) {
	if domain.CurrentSubdomains >= domain.MaxSubdomains {
		return false, nil
	}

	var count int64
	err := a.db.Model(&models.SubdomainClaim{}).
		Where("domain_id = ? AND label = ?", domain.ID, strings.ToLower(label)).
		Count(&count).Error
	if err != nil {
		return false, Wrap(KindExternalService, "checking existing claims failed", err)
	}

	return count == 0, nil
}

// Claim reserves label under domainID for claimantID: it creates the DNS
// record through the domain's zone credentials, then persists the claim
// and increments the usage counter in one transaction. If the insert
// loses a race on the unique index the DNS record is rolled back
// best-effort; a failed rollback is recorded as an OrphanRecord and
// reported to the domain owner rather than silently lost.
func (a *Allocator) Claim(ctx context.Context, domainID uint, label string, claimantID uint) (*models.SubdomainClaim, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}

	domain, err := a.activeDomain(domainID)
	if err != nil {
		return nil, err
	}

	// Optimistic pre-check so obviously taken labels fail before the
	// external call. The transaction below remains the arbiter.
	free, err := a.available(domain, label)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, E(KindAlreadyTaken, "subdomain is not available")
	}

	normalized := strings.ToLower(label)
	fqdn := normalized + "." + domain.DomainName
	creds := ZoneCredentials{ZoneID: domain.ZoneID, APIToken: domain.APIToken}

	recordID, err := a.zones.CreateRecord(ctx, creds, fqdn)
	if err != nil {
		// No DNS record exists, nothing was persisted.
		return nil, err
	}

	claim := &models.SubdomainClaim{
		DomainID:  domainID,
		Label:     normalized,
		ClaimedBy: claimantID,
		RecordID:  recordID,
	}

	txErr := a.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.DonatedDomain{}).
			Where("id = ? AND current_subdomains < max_subdomains", domainID).
			UpdateColumn("current_subdomains", gorm.Expr("current_subdomains + 1"))
		if res.Error != nil {
			return Wrap(KindExternalService, "updating domain usage failed", res.Error)
		}
		if res.RowsAffected == 0 {
			return E(KindAlreadyTaken, "domain is at capacity")
		}

		if err := tx.Create(claim).Error; err != nil {
			if IsDuplicateKey(err) {
				return E(KindAlreadyTaken, "subdomain is not available")
			}
			return Wrap(KindExternalService, "persisting claim failed", err)
		}
		return nil
	})
	if txErr != nil {
		a.rollbackRecord(ctx, domain, normalized, recordID, txErr)
		return nil, txErr
	}

	a.log.Info("subdomain claimed",
		zap.String("fqdn", fqdn),
		zap.Uint("domain_id", domainID),
		zap.Uint("claimed_by", claimantID))

	if a.notify != nil {
		a.notify.Notify(&Event{
			Kind:   EventSubdomainClaimed,
			Domain: domain,
			Label:  normalized,
			Detail: fmt.Sprintf("subdomain %s claimed by user %d", fqdn, claimantID),
		})
	}

	return claim, nil
}

// rollbackRecord deletes a DNS record created by a claim whose
// persistence failed. If the delete also fails the record is flagged for
// the reconciler instead of being lost.
func (a *Allocator) rollbackRecord(ctx context.Context, domain *models.DonatedDomain, label, recordID string, cause error) {
	creds := ZoneCredentials{ZoneID: domain.ZoneID, APIToken: domain.APIToken}
	if err := a.zones.DeleteRecord(ctx, creds, recordID); err == nil {
		return
	}

	orphan := &models.OrphanRecord{
		DomainID: domain.ID,
		Label:    label,
		RecordID: recordID,
		Reason:   fmt.Sprintf("rollback failed after: %s", MessageOf(cause)),
	}
	if err := a.db.Create(orphan).Error; err != nil {
		a.log.Error("recording orphan DNS record failed",
			zap.String("record_id", recordID),
			zap.Uint("domain_id", domain.ID),
			zap.Error(err))
		return
	}

	metrics.OrphanRecordsFlagged.Inc()
	a.log.Warn("orphan DNS record flagged for reconciliation",
		zap.String("label", label),
		zap.Uint("domain_id", domain.ID),
		zap.String("record_id", recordID))

	if a.notify != nil {
		a.notify.Notify(&Event{
			Kind:   EventOrphanFlagged,
			Domain: domain,
			Label:  label,
			Detail: fmt.Sprintf("DNS record %s.%s has no claim and is pending cleanup", label, domain.DomainName),
		})
	}
}
