package testutil

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/straye-as/pipeline-api/internal/database"
	"github.com/straye-as/pipeline-api/internal/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SetupTestDB opens a private in-memory sqlite database with the full schema.
// The pool is pinned to one connection so the in-memory database lives as
// long as the test does.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open(sqlite.Open(database.SQLiteDSN(":memory:")))
	require.NoError(t, err, "failed to open sqlite test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	require.NoError(t, database.AutoMigrate(db), "failed to migrate test schema")

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// CreateTestUser inserts a directory user
func CreateTestUser(t *testing.T, db *gorm.DB, name string) *domain.User {
	t.Helper()
	user := &domain.User{DisplayName: name, Email: "user@example.com", IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateTestContact inserts a directory contact
func CreateTestContact(t *testing.T, db *gorm.DB, firstName, lastName string) *domain.Contact {
	t.Helper()
	contact := &domain.Contact{FirstName: firstName, LastName: lastName, Email: "contact@example.com"}
	require.NoError(t, db.Create(contact).Error)
	return contact
}

// CreateTestFunnel inserts a bare funnel with stages at order indexes 0..n-1.
// It bypasses the service, so no default pointer or metrics rows are written.
func CreateTestFunnel(t *testing.T, db *gorm.DB, name string, stageKeys ...string) (*domain.Funnel, []domain.Stage) {
	t.Helper()
	funnel := &domain.Funnel{Name: name, IsActive: true}
	require.NoError(t, db.Create(funnel).Error)

	stages := make([]domain.Stage, len(stageKeys))
	for i, key := range stageKeys {
		stages[i] = domain.Stage{
			FunnelID:   funnel.ID,
			StageKey:   key,
			Name:       key,
			OrderIndex: i,
			SemanticID: domain.SemanticInProgress,
		}
		require.NoError(t, db.Create(&stages[i]).Error)
	}
	return funnel, stages
}

// CreateTestDeal inserts a deal on the given stage with a manual amount
func CreateTestDeal(t *testing.T, db *gorm.DB, stage *domain.Stage, title string, amount float64) *domain.Deal {
	t.Helper()
	now := time.Now().UTC()
	deal := &domain.Deal{
		DealNumber:         "T-" + title + "-" + now.Format("150405.000000000"),
		Title:              title,
		DealType:           domain.DealTypeSale,
		FunnelID:           stage.FunnelID,
		StageID:            stage.ID,
		Amount:             decimal.NewFromFloat(amount),
		Currency:           domain.DefaultCurrency,
		IsManualAmount:     true,
		ProbabilityPercent: domain.DefaultProbability,
		TaxValue:           decimal.Zero,
		ResponsibleUserID:  1,
		IsNew:              true,
		CreatedBy:          1,
		ModifiedBy:         1,
	}
	require.NoError(t, db.Create(deal).Error)
	return deal
}
