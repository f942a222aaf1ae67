package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"subhub/internal/config"

	cloudflare "github.com/cloudflare/cloudflare-go"
)

// ZoneCredentials identifies a Cloudflare zone together with the API
// token authorized to manage it. Values come from the donated-domain row
// and must never be serialized.
type ZoneCredentials struct {
	ZoneID   string
	APIToken string
}

// ZoneClient issues DNS operations against a donated domain's zone.
// Implementations must bound every call with the configured timeout.
type ZoneClient interface {
	// VerifyZone issues a read-only probe confirming the credentials can
	// access the zone.
	VerifyZone(ctx context.Context, creds ZoneCredentials) error
	// CreateRecord creates the DNS record for fqdn and returns its ID.
	CreateRecord(ctx context.Context, creds ZoneCredentials, fqdn string) (string, error)
	// DeleteRecord removes a record by ID. Deleting a record that no
	// longer exists is not an error.
	DeleteRecord(ctx context.Context, creds ZoneCredentials, recordID string) error
}

// CloudflareZones implements ZoneClient against the Cloudflare API
type CloudflareZones struct {
	timeout      time.Duration
	recordType   string
	recordTarget string
	proxied      bool
}

// NewCloudflareZones creates a Cloudflare-backed zone client
func NewCloudflareZones(cfg *config.CloudflareConfig, timeout time.Duration) *CloudflareZones {
	return &CloudflareZones{
		timeout:      timeout,
		recordType:   cfg.RecordType,
		recordTarget: cfg.RecordTarget,
		proxied:      cfg.Proxied,
	}
}

func (s *CloudflareZones) api(creds ZoneCredentials) (*cloudflare.API, error) {
	api, err := cloudflare.NewWithAPIToken(creds.APIToken,
		cloudflare.HTTPClient(&http.Client{Timeout: s.timeout}))
	if err != nil {
		return nil, Wrap(KindInvalidCredentials, "cloudflare API token rejected", err)
	}
	return api, nil
}

// VerifyZone lists a single DNS record from the zone as a read-only
// credential probe.
func (s *CloudflareZones) VerifyZone(ctx context.Context, creds ZoneCredentials) error {
	api, err := s.api(creds)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rc := cloudflare.ZoneIdentifier(creds.ZoneID)
	_, _, err = api.ListDNSRecords(ctx, rc, cloudflare.ListDNSRecordsParams{
		ResultInfo: cloudflare.ResultInfo{PerPage: 1},
	})
	if err != nil {
		return classifyProbeError(err)
	}
	return nil
}

// classifyProbeError maps a zone-probe failure onto the error taxonomy.
// Only a genuine auth rejection (or an unknown zone, which means the
// credentials cannot see it) blames the donor's credentials; timeouts,
// rate limits and Cloudflare-side failures are external-service errors
// so the donor is not told a valid token was rejected.
func classifyProbeError(err error) error {
	var authn cloudflare.AuthenticationError
	var authnp *cloudflare.AuthenticationError
	var authz cloudflare.AuthorizationError
	var authzp *cloudflare.AuthorizationError
	var nf cloudflare.NotFoundError
	var nfp *cloudflare.NotFoundError
	switch {
	case errors.As(err, &authn), errors.As(err, &authnp),
		errors.As(err, &authz), errors.As(err, &authzp):
		return Wrap(KindInvalidCredentials, "cloudflare rejected the zone credentials", err)
	case errors.As(err, &nf), errors.As(err, &nfp):
		return Wrap(KindInvalidCredentials, "zone is not accessible with these credentials", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindExternalService, "cloudflare zone probe timed out", err)
	}
	return Wrap(KindExternalService, "cloudflare zone probe failed", err)
}

// CreateRecord creates the configured record type for fqdn (TTL 1 = auto)
func (s *CloudflareZones) CreateRecord(ctx context.Context, creds ZoneCredentials, fqdn string) (string, error) {
	api, err := s.api(creds)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	proxied := s.proxied
	rc := cloudflare.ZoneIdentifier(creds.ZoneID)
	rec, err := api.CreateDNSRecord(ctx, rc, cloudflare.CreateDNSRecordParams{
		Type:    s.recordType,
		Name:    fqdn,
		Content: s.recordTarget,
		TTL:     1,
		Proxied: &proxied,
	})
	if err != nil {
		return "", Wrap(KindExternalService, "creating DNS record failed", err)
	}
	return rec.ID, nil
}

// DeleteRecord removes a record by ID
func (s *CloudflareZones) DeleteRecord(ctx context.Context, creds ZoneCredentials, recordID string) error {
	api, err := s.api(creds)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rc := cloudflare.ZoneIdentifier(creds.ZoneID)
	if err := api.DeleteDNSRecord(ctx, rc, recordID); err != nil {
		var nfe cloudflare.NotFoundError
		var nfep *cloudflare.NotFoundError
		if errors.As(err, &nfe) || errors.As(err, &nfep) {
			return nil
		}
		return Wrap(KindExternalService, "deleting DNS record failed", err)
	}
	return nil
}
