package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ucmas-ksa/portal-api/internal/models"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
)

type mockUserRepo struct {
	users         map[string]*models.User
	byEmail       map[string]*models.User
	auditLogs     []*models.AuditLog
	revokedUsers  []string
	passwordOfID  string
	passwordHash  string
	activeChanges map[string]bool
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if u, ok := m.users[id]; ok {
		u.Active = false
	}
	return nil
}

func (m *mockUserRepo) SetActive(ctx context.Context, id string, active bool) error {
	if m.activeChanges == nil {
		m.activeChanges = make(map[string]bool)
	}
	m.activeChanges[id] = active
	if u, ok := m.users[id]; ok {
		u.Active = active
	}
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwordOfID = id
	m.passwordHash = passwordHash
	return nil
}

func (m *mockUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedUsers = append(m.revokedUsers, userID)
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func (m *mockUserRepo) ListAuditLogs(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error) {
	out := make([]models.AuditLog, 0, len(m.auditLogs))
	for _, l := range m.auditLogs {
		out = append(out, *l)
	}
	return out, len(out), nil
}

func TestUserServiceCreateOrgRoleRequiresOrganization(t *testing.T) {
	repo := &mockUserRepo{}
	svc := NewUserService(repo, &mockOrgResolver{}, nil, nil)

	req := CreateUserRequest{
		Email:    "manager@example.com",
		FullName: "Manager",
		Role:     models.RoleOrgManager,
		Password: "password123",
	}
	_, err := svc.Create(context.Background(), req, "actor", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateAdminRejectsOrganization(t *testing.T) {
	repo := &mockUserRepo{}
	orgID := uuid.NewString()
	orgs := &mockOrgResolver{byName: map[string]*models.Organization{
		"Al Noor School": {ID: orgID},
	}}
	svc := NewUserService(repo, orgs, nil, nil)

	req := CreateUserRequest{
		Email:          "admin@example.com",
		FullName:       "Admin",
		Role:           models.RoleAdmin,
		OrganizationID: &orgID,
		Password:       "password123",
	}
	_, err := svc.Create(context.Background(), req, "actor", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateOrgManager(t *testing.T) {
	repo := &mockUserRepo{}
	orgID := uuid.NewString()
	orgs := &mockOrgResolver{byName: map[string]*models.Organization{
		"Al Noor School": {ID: orgID},
	}}
	svc := NewUserService(repo, orgs, nil, nil)

	req := CreateUserRequest{
		Email:          "Manager@Example.com",
		FullName:       "Manager",
		Role:           models.RoleOrgManager,
		OrganizationID: &orgID,
		Active:         true,
		Password:       "password123",
	}
	user, err := svc.Create(context.Background(), req, "actor", models.LoginRequest{IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "manager@example.com", user.Email)
	require.NotNil(t, user.OrganizationID)
	assert.Equal(t, orgID, *user.OrganizationID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password123")))
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionUserCreate, repo.auditLogs[0].Action)
}

func TestUserServiceCreateDuplicateEmail(t *testing.T) {
	orgID := uuid.NewString()
	repo := &mockUserRepo{byEmail: map[string]*models.User{
		"manager@example.com": {ID: "u-1"},
	}}
	orgs := &mockOrgResolver{byName: map[string]*models.Organization{"x": {ID: orgID}}}
	svc := NewUserService(repo, orgs, nil, nil)

	req := CreateUserRequest{
		Email:          "manager@example.com",
		FullName:       "Manager",
		Role:           models.RoleOrgStaff,
		OrganizationID: &orgID,
		Password:       "password123",
	}
	_, err := svc.Create(context.Background(), req, "actor", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserServiceDeactivateRevokesSessions(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"u-1": {ID: "u-1", Email: "manager@example.com", Active: true},
	}}
	svc := NewUserService(repo, &mockOrgResolver{}, nil, nil)

	user, err := svc.SetActive(context.Background(), "u-1", false, "actor", models.LoginRequest{})
	require.NoError(t, err)
	assert.False(t, user.Active)
	assert.Equal(t, []string{"u-1"}, repo.revokedUsers)

	// Re-activation must not revoke anything further.
	user, err = svc.SetActive(context.Background(), "u-1", true, "actor", models.LoginRequest{})
	require.NoError(t, err)
	assert.True(t, user.Active)
	assert.Len(t, repo.revokedUsers, 1)
}

func TestUserServiceResetPassword(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{
		"u-1": {ID: "u-1", Email: "manager@example.com", Active: true},
	}}
	svc := NewUserService(repo, &mockOrgResolver{}, nil, nil)

	err := svc.ResetPassword(context.Background(), "u-1", ResetPasswordPayload{NewPassword: "replacement1"}, "actor", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "u-1", repo.passwordOfID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.passwordHash), []byte("replacement1")))
	assert.Equal(t, []string{"u-1"}, repo.revokedUsers)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionPasswordChange, repo.auditLogs[0].Action)
}

func TestUserServiceResetPasswordTooShort(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"u-1": {ID: "u-1"}}}
	svc := NewUserService(repo, &mockOrgResolver{}, nil, nil)

	err := svc.ResetPassword(context.Background(), "u-1", ResetPasswordPayload{NewPassword: "short"}, "actor", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.passwordOfID)
}

func TestUserServiceUpdateUnknownOrganization(t *testing.T) {
	orgID := uuid.NewString()
	repo := &mockUserRepo{users: map[string]*models.User{"u-1": {ID: "u-1"}}}
	svc := NewUserService(repo, &mockOrgResolver{}, nil, nil)

	req := UpdateUserRequest{
		FullName:       "Manager",
		Role:           models.RoleOrgManager,
		OrganizationID: &orgID,
	}
	_, err := svc.Update(context.Background(), "u-1", req, "actor", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
