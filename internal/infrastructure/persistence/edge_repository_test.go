package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/edgesync/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *capturingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func TestGormAssetRepository_SaveFindDelete(t *testing.T) {
	repo := NewGormAssetRepository(newTestDB(t))
	ctx := context.Background()

	tenantID := uuid.New()
	asset := edge.NewAsset(tenantID, edge.NewTimeUUID())
	asset.Name = "Pump 1"
	asset.Type = "pump"
	asset.AdditionalInfo = json.RawMessage(`{"floor":2}`)

	saved, err := repo.Save(ctx, asset, false)
	require.NoError(t, err)
	assert.Equal(t, asset.ID, saved.ID)

	found, err := repo.FindByID(ctx, tenantID, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pump 1", found.Name)
	assert.Equal(t, edge.NullUUID, found.CustomerID)
	assert.Equal(t, asset.CreatedTime, found.CreatedTime)
	assert.JSONEq(t, `{"floor":2}`, string(found.AdditionalInfo))

	t.Run("save replaces the record", func(t *testing.T) {
		found.Label = "north"
		_, err := repo.Save(ctx, found, false)
		require.NoError(t, err)

		again, err := repo.FindByID(ctx, tenantID, asset.ID)
		require.NoError(t, err)
		assert.Equal(t, "north", again.Label)

		n, err := repo.Count(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("other tenants do not see the record", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New(), asset.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, tenantID, asset.ID))
		require.NoError(t, repo.Delete(ctx, tenantID, asset.ID))

		_, err := repo.FindByID(ctx, tenantID, asset.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormRepository_Notifications(t *testing.T) {
	pub := &capturingPublisher{}
	repo := NewGormCustomerRepository(newTestDB(t), WithEventPublisher(pub))
	ctx := context.Background()

	tenantID := uuid.New()
	customer := edge.NewCustomer(tenantID, uuid.New())
	customer.Title = "ACME"

	_, err := repo.Save(ctx, customer, false)
	require.NoError(t, err)
	assert.Empty(t, pub.events, "notify=false publishes nothing")

	customer.City = "Kyiv"
	_, err = repo.Save(ctx, customer, true)
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	saved, ok := pub.events[0].(*edge.EntitySavedEvent)
	require.True(t, ok)
	assert.False(t, saved.Created)
	assert.Equal(t, edge.NewEntityID(edge.EntityTypeCustomer, customer.ID), saved.Entity)

	deleted, err := repo.DeleteWithNotify(ctx, tenantID, customer.ID, true)
	require.NoError(t, err)
	assert.True(t, deleted)
	require.Len(t, pub.events, 2)
	assert.Equal(t, edge.EventTypeEntityDeleted, pub.events[1].EventType())

	deleted, err = repo.DeleteWithNotify(ctx, tenantID, customer.ID, true)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Len(t, pub.events, 2, "deleting a missing record does not notify")
}

func TestGormEntityViewRepository_Link(t *testing.T) {
	repo := NewGormEntityViewRepository(newTestDB(t))
	ctx := context.Background()

	tenantID := uuid.New()
	view := edge.NewEntityView(tenantID, uuid.New())
	deviceID := uuid.New()
	ref := edge.NewEntityID(edge.EntityTypeDevice, deviceID)
	view.Entity = &ref

	_, err := repo.Save(ctx, view, false)
	require.NoError(t, err)

	found, err := repo.FindByID(ctx, tenantID, view.ID)
	require.NoError(t, err)
	require.NotNil(t, found.Entity)
	assert.Equal(t, ref, *found.Entity)

	found.Entity = nil
	_, err = repo.Save(ctx, found, false)
	require.NoError(t, err)

	found, err = repo.FindByID(ctx, tenantID, view.ID)
	require.NoError(t, err)
	assert.Nil(t, found.Entity)
}

func TestGormUserRepository_Credentials(t *testing.T) {
	repo := NewGormUserRepository(newTestDB(t))
	ctx := context.Background()

	tenantID := uuid.New()
	user := edge.NewUser(tenantID, uuid.New())
	user.Email = "ops@example.com"
	user.Authority = edge.AuthorityTenantAdmin

	_, err := repo.Save(ctx, user, false)
	require.NoError(t, err)

	_, err = repo.FindCredentialsByUserID(ctx, tenantID, user.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	creds, err := repo.SaveCredentials(ctx, tenantID, edge.NewPendingCredentials(user.ID, "token-1"))
	require.NoError(t, err)
	assert.False(t, creds.Enabled)
	assert.Equal(t, "token-1", creds.ActivateToken)

	creds.Apply(&edge.UserCredentialsUpdateMsg{UserID: user.ID, Enabled: true, Password: "$2a$hash"})
	_, err = repo.SaveCredentials(ctx, tenantID, creds)
	require.NoError(t, err)

	stored, err := repo.FindCredentialsByUserID(ctx, tenantID, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)
	assert.Equal(t, "$2a$hash", stored.Password)
	assert.Empty(t, stored.ActivateToken)
	assert.Equal(t, creds.ID, stored.ID)

	require.NoError(t, repo.Delete(ctx, tenantID, user.ID))
	_, err = repo.FindCredentialsByUserID(ctx, tenantID, user.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound, "deleting a user removes its credentials")
}

func TestGormRepository_StorageFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	repo := NewGormAssetRepository(gormDB)
	tenantID, id := uuid.New(), uuid.New()

	boom := errors.New("connection reset")
	mock.ExpectQuery(`SELECT \* FROM "assets" WHERE tenant_id = \$1 AND id = \$2`).
		WillReturnError(boom)

	_, err = repo.FindByID(context.Background(), tenantID, id)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, shared.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormRepository_SaveKeepsOwnership(t *testing.T) {
	repo := NewGormAssetRepository(newTestDB(t))
	ctx := context.Background()

	owner := uuid.New()
	asset := edge.NewAsset(owner, edge.NewTimeUUID())
	asset.Name = "Pump 1"
	_, err := repo.Save(ctx, asset, false)
	require.NoError(t, err)

	t.Run("another tenant cannot take the id", func(t *testing.T) {
		intruder := edge.NewAsset(uuid.New(), asset.ID)
		intruder.Name = "hijacked"

		_, err := repo.Save(ctx, intruder, false)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)

		found, err := repo.FindByID(ctx, owner, asset.ID)
		require.NoError(t, err)
		assert.Equal(t, "Pump 1", found.Name)
		assert.Equal(t, asset.CreatedTime, found.CreatedTime)
	})

	t.Run("updates keep the created time", func(t *testing.T) {
		update := *asset
		update.Name = "Pump 2"
		update.CreatedTime = asset.CreatedTime + 1000

		saved, err := repo.Save(ctx, &update, false)
		require.NoError(t, err)
		assert.Equal(t, "Pump 2", saved.Name)
		assert.Equal(t, asset.CreatedTime, saved.CreatedTime)
	})
}

func TestGormUserRepository_SaveWithCredentials(t *testing.T) {
	db := newTestDB(t)
	pub := &capturingPublisher{}
	repo := NewGormUserRepository(db, WithEventPublisher(pub))
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("stores both", func(t *testing.T) {
		user := edge.NewUser(tenantID, uuid.New())
		saved, err := repo.SaveWithCredentials(ctx, user, edge.NewPendingCredentials(user.ID, "token-1"), true)
		require.NoError(t, err)
		assert.Equal(t, user.ID, saved.ID)

		creds, err := repo.FindCredentialsByUserID(ctx, tenantID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "token-1", creds.ActivateToken)
		require.Len(t, pub.events, 1)
		assert.True(t, pub.events[0].(*edge.EntitySavedEvent).Created)
	})

	t.Run("a failed credentials write stores no user", func(t *testing.T) {
		boom := errors.New("disk full")
		require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_credentials", func(tx *gorm.DB) {
			if tx.Statement.Table == "user_credentials" {
				_ = tx.AddError(boom)
			}
		}))
		t.Cleanup(func() { _ = db.Callback().Create().Remove("test:fail_credentials") })

		user := edge.NewUser(tenantID, uuid.New())
		_, err := repo.SaveWithCredentials(ctx, user, edge.NewPendingCredentials(user.ID, "token-2"), true)
		assert.ErrorIs(t, err, boom)

		_, err = repo.FindByID(ctx, tenantID, user.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		_, err = repo.FindCredentialsByUserID(ctx, tenantID, user.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.Len(t, pub.events, 1, "nothing is published for a rolled back write")
	})
}
