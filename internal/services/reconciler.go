package services

import (
	"context"
	"time"

	"subhub/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reconciler repairs the known inconsistency window of the claim path:
// DNS records that exist without a claim row. It retries the pending
// deletes and recomputes per-domain usage counters from the claim table.
type Reconciler struct {
	db    *gorm.DB
	zones ZoneClient
	log   *zap.Logger
}

// NewReconciler creates a reconciler
func NewReconciler(db *gorm.DB, zones ZoneClient, log *zap.Logger) *Reconciler {
	return &Reconciler{db: db, zones: zones, log: log}
}

// Sweep processes all unresolved orphan records, then repairs counter
// drift. Individual failures are logged and retried on the next sweep.
func (r *Reconciler) Sweep(ctx context.Context) error {
	var orphans []models.OrphanRecord
	if err := r.db.Where("resolved_at IS NULL").Find(&orphans).Error; err != nil {
		return Wrap(KindExternalService, "loading orphan records failed", err)
	}

	if len(orphans) > 0 {
		r.log.Info("reconciling orphan DNS records", zap.Int("count", len(orphans)))
	}

	for i := range orphans {
		if err := r.resolveOrphan(ctx, &orphans[i]); err != nil {
			r.log.Warn("orphan record still unresolved",
				zap.Uint("orphan_id", orphans[i].ID),
				zap.String("record_id", orphans[i].RecordID),
				zap.Error(err))
		}
	}

	return r.repairCounters()
}

func (r *Reconciler) resolveOrphan(ctx context.Context, orphan *models.OrphanRecord) error {
	var domain models.DonatedDomain
	if err := r.db.First(&domain, orphan.DomainID).Error; err != nil {
		return Wrap(KindExternalService, "loading domain for orphan failed", err)
	}

	creds := ZoneCredentials{ZoneID: domain.ZoneID, APIToken: domain.APIToken}
	if err := r.zones.DeleteRecord(ctx, creds, orphan.RecordID); err != nil {
		return err
	}

	now := time.Now()
	return r.db.Model(orphan).Update("resolved_at", &now).Error
}

// repairCounters recomputes current_subdomains from the claim table. The
// counter is maintained transactionally on claim; this sweep heals any
// drift left behind by failures.
func (r *Reconciler) repairCounters() error {
	var domains []models.DonatedDomain
	if err := r.db.Find(&domains).Error; err != nil {
		return Wrap(KindExternalService, "loading domains failed", err)
	}

	for i := range domains {
		var count int64
		err := r.db.Model(&models.SubdomainClaim{}).
			Where("domain_id = ?", domains[i].ID).
			Count(&count).Error
		if err != nil {
			return Wrap(KindExternalService, "counting claims failed", err)
		}

		if int(count) == domains[i].CurrentSubdomains {
			continue
		}

		r.log.Warn("repairing subdomain counter drift",
			zap.Uint("domain_id", domains[i].ID),
			zap.Int("stored", domains[i].CurrentSubdomains),
			zap.Int64("actual", count))

		err = r.db.Model(&models.DonatedDomain{}).
			Where("id = ?", domains[i].ID).
			UpdateColumn("current_subdomains", count).Error
		if err != nil {
			return Wrap(KindExternalService, "updating counter failed", err)
		}
	}
	return nil
}
