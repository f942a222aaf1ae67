package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"subhub/internal/database"
	"subhub/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

// testDB opens a private in-memory database. A single pooled connection
// keeps the in-memory store alive and serializes concurrent writers the
// way a server-side database would.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// fakeZones is an in-memory ZoneClient. The onCreate hook runs after a
// successful record creation, before the caller persists anything, which
// lets tests simulate a competing claim landing during the external call.
type fakeZones struct {
	mu        sync.Mutex
	verifyErr error
	createErr error
	deleteErr error
	created   []string
	deleted   []string
	nextID    int
	onCreate  func(fqdn string)
}

func (f *fakeZones) VerifyZone(ctx context.Context, creds ZoneCredentials) error {
	return f.verifyErr
}

func (f *fakeZones) CreateRecord(ctx context.Context, creds ZoneCredentials, fqdn string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("rec-%d", f.nextID)
	f.created = append(f.created, fqdn)
	f.mu.Unlock()
	if f.onCreate != nil {
		f.onCreate(fqdn)
	}
	return id, nil
}

func (f *fakeZones) DeleteRecord(ctx context.Context, creds ZoneCredentials, recordID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	f.deleted = append(f.deleted, recordID)
	f.mu.Unlock()
	return nil
}

func (f *fakeZones) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// seedDomain inserts an active donated domain ready for claims
func seedDomain(t *testing.T, db *gorm.DB, name string, maxSubdomains int) *models.DonatedDomain {
	t.Helper()
	domain := &models.DonatedDomain{
		DomainName:    name,
		OwnerID:       1,
		ZoneID:        "zone-" + name,
		APIToken:      "token-" + name,
		MaxSubdomains: maxSubdomains,
		IsActive:      true,
	}
	require.NoError(t, db.Create(domain).Error)
	return domain
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
