package services

import (
	"testing"
	"time"

	"caisse/internal/models"
	"caisse/pkg/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionService_SeedDefaults(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPermissionService(db)

	created, err := svc.SeedDefaults()
	require.NoError(t, err)
	assert.Equal(t, len(models.EntityRoles)*len(models.AllResources)*len(models.AllActions), created)

	created, err = svc.SeedDefaults()
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestPermissionService_HasPermission(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPermissionService(db)
	_, err := svc.SeedDefaults()
	require.NoError(t, err)

	tests := []struct {
		role     string
		resource string
		action   string
		want     bool
	}{
		{models.RoleCashier, models.ResourceInvoices, models.ActionCreate, true},
		{models.RoleCashier, models.ResourceInvoices, models.ActionValidate, true},
		{models.RoleCashier, models.ResourceInvoices, models.ActionDelete, false},
		{models.RoleCashier, models.ResourceUsers, models.ActionRead, false},
		{models.RoleStockKeeper, models.ResourceOrders, models.ActionValidate, true},
		{models.RoleManager, models.ResourceAuditLogs, models.ActionExport, false},
		{models.RoleAdmin, models.ResourceRegistrations, models.ActionRead, false},
		{models.RoleSuperAdmin, models.ResourceRegistrations, models.ActionUpdate, true},
	}
	for _, tt := range tests {
		t.Run(tt.role+":"+tt.resource+":"+tt.action, func(t *testing.T) {
			got, err := svc.HasPermission(tt.role, 1, tt.resource, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPermissionService_EntityOverride(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPermissionService(db)
	_, err := svc.SeedDefaults()
	require.NoError(t, err)

	admin := Actor{UserID: 10, EntityID: 1, Role: models.RoleAdmin}
	entries, err := svc.SetMatrix(admin, models.RoleCashier, 99, []MatrixUpdate{
		{Resource: models.ResourceReports, Action: models.ActionRead, Allowed: true},
		{Resource: models.ResourceInvoices, Action: models.ActionValidate, Allowed: false},
	})
	require.NoError(t, err)

	var overridden int
	for _, e := range entries {
		if e.Overridden {
			overridden++
		}
	}
	assert.Equal(t, 2, overridden)

	// 管理员只能修改本经营主体
	allowed, err := svc.HasPermission(models.RoleCashier, 1, models.ResourceReports, models.ActionRead)
	require.NoError(t, err)
	assert.True(t, allowed)
	allowed, err = svc.HasPermission(models.RoleCashier, 1, models.ResourceInvoices, models.ActionValidate)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = svc.HasPermission(models.RoleCashier, 2, models.ResourceReports, models.ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)

	// 再次写入同一格为更新
	_, err = svc.SetMatrix(admin, models.RoleCashier, 1, []MatrixUpdate{
		{Resource: models.ResourceReports, Action: models.ActionRead, Allowed: false},
	})
	require.NoError(t, err)
	allowed, err = svc.HasPermission(models.RoleCashier, 1, models.ResourceReports, models.ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)

	effective, err := svc.Effective(models.RoleCashier, 1)
	require.NoError(t, err)
	assert.NotContains(t, effective[models.ResourceInvoices], models.ActionValidate)
	assert.Contains(t, effective[models.ResourceInvoices], models.ActionCreate)

	require.NoError(t, svc.ResetEntityOverrides(1, models.RoleCashier))
	allowed, err = svc.HasPermission(models.RoleCashier, 1, models.ResourceInvoices, models.ActionValidate)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestPermissionService_SetMatrixGuards(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPermissionService(db)
	admin := Actor{UserID: 10, EntityID: 1, Role: models.RoleAdmin}

	_, err := svc.SetMatrix(admin, models.RoleAdmin, 1, []MatrixUpdate{
		{Resource: models.ResourceUsers, Action: models.ActionRead, Allowed: false},
	})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.SetMatrix(admin, models.RoleManager, 1, []MatrixUpdate{
		{Resource: models.ResourceRegistrations, Action: models.ActionRead, Allowed: true},
	})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.SetMatrix(admin, models.RoleManager, 1, []MatrixUpdate{
		{Resource: "unknown", Action: models.ActionRead, Allowed: true},
	})
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, err = svc.SetMatrix(admin, models.RoleSuperAdmin, 1, nil)
	assert.ErrorIs(t, err, ErrInvalidParam)

	// 超级管理员修改平台默认值
	root := Actor{UserID: 1, Role: models.RoleSuperAdmin}
	_, err = svc.SetMatrix(root, models.RoleManager, 0, []MatrixUpdate{
		{Resource: models.ResourceAuditLogs, Action: models.ActionExport, Allowed: true},
	})
	require.NoError(t, err)
	allowed, err := svc.HasPermission(models.RoleManager, 5, models.ResourceAuditLogs, models.ActionExport)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAuthService_Login(t *testing.T) {
	f := newFixture(t)
	permissions := NewPermissionService(f.db)
	_, err := permissions.SeedDefaults()
	require.NoError(t, err)
	auth := NewAuthService(f.db, jwt.NewJWTManager("secret", time.Hour), permissions)

	t.Run("by username", func(t *testing.T) {
		result, err := auth.Login("fatou", "password123")
		require.NoError(t, err)
		assert.NotEmpty(t, result.Token)
		assert.Equal(t, f.cashier.ID, result.User.ID)
		assert.NotNil(t, result.User.LastLoginAt)
	})

	t.Run("by email", func(t *testing.T) {
		_, err := auth.Login("FATOU@example.com", "password123")
		assert.NoError(t, err)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := auth.Login("fatou", "nope")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := auth.Login("ghost", "password123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("suspended user", func(t *testing.T) {
		require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", f.keeper.ID).Update("status", models.UserStatusSuspended).Error)
		_, err := auth.Login("ibrahima", "password123")
		assert.ErrorIs(t, err, ErrAccountInactive)
	})

	t.Run("inactive entity", func(t *testing.T) {
		require.NoError(t, f.db.Model(&models.Entity{}).Where("id = ?", f.entity.ID).Update("status", models.EntityStatusInactive).Error)
		defer f.db.Model(&models.Entity{}).Where("id = ?", f.entity.ID).Update("status", models.EntityStatusActive)
		_, err := auth.Login("moussa", "password123")
		assert.ErrorIs(t, err, ErrEntityInactive)
	})
}

func TestAuthService_MeAndRefresh(t *testing.T) {
	f := newFixture(t)
	permissions := NewPermissionService(f.db)
	_, err := permissions.SeedDefaults()
	require.NoError(t, err)
	auth := NewAuthService(f.db, jwt.NewJWTManager("secret", time.Hour), permissions)

	profile, err := auth.Me(f.cashier.ID)
	require.NoError(t, err)
	assert.Equal(t, "fatou", profile.User.Username)
	assert.Contains(t, profile.Permissions[models.ResourceInvoices], models.ActionCreate)
	assert.NotContains(t, profile.Permissions, models.ResourceUsers)

	login, err := auth.Login("fatou", "password123")
	require.NoError(t, err)
	refreshed, err := auth.Refresh(login.Token)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.Token)

	_, err = auth.Refresh("garbage")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
