package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/go-auth-otp/internal/domain"
	"github.com/go-auth-otp/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockIdentityRepo struct{ mock.Mock }

func (m *mockIdentityRepo) Create(ctx context.Context, ident *domain.Identity) error {
	return m.Called(ctx, ident).Error(0)
}
func (m *mockIdentityRepo) Get(ctx context.Context, identityID string) (*domain.Identity, error) {
	args := m.Called(ctx, identityID)
	if i, _ := args.Get(0).(*domain.Identity); i != nil {
		return i, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockIdentityRepo) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	args := m.Called(ctx, email)
	if i, _ := args.Get(0).(*domain.Identity); i != nil {
		return i, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockIdentityRepo) MarkVerified(ctx context.Context, identityID string) error {
	return m.Called(ctx, identityID).Error(0)
}

func newSvc(repo identityRepo) Service {
	return NewService(ServiceDeps{IdentityRepo: repo, BcryptCost: bcrypt.MinCost})
}

// --- CreateIdentity ---

func TestCreateIdentity_HashesPassword(t *testing.T) {
	repo := memory.NewIdentityRepo()
	svc := newSvc(repo)

	ident, err := svc.CreateIdentity(context.Background(), domain.RegisterRequest{
		Email:    " Alice@Example.com ",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ident.IdentityID)
	assert.Equal(t, "alice@example.com", ident.Email)
	assert.False(t, ident.Verified)
	assert.NotEqual(t, "correct horse", ident.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte("correct horse")))
}

func TestCreateIdentity_InvalidRequest(t *testing.T) {
	svc := newSvc(memory.NewIdentityRepo())
	cases := map[string]domain.RegisterRequest{
		"bad email":      {Email: "nope", Password: "longenough"},
		"short password": {Email: "a@x.com", Password: "short"},
		"bad phone":      {Email: "a@x.com", Password: "longenough", Phone: ptr("12345")},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateIdentity(context.Background(), req)
			assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
		})
	}
}

func TestCreateIdentity_DuplicateEmail(t *testing.T) {
	svc := newSvc(memory.NewIdentityRepo())
	req := domain.RegisterRequest{Email: "a@x.com", Password: "longenough"}
	_, err := svc.CreateIdentity(context.Background(), req)
	require.NoError(t, err)

	req.Email = "A@X.COM"
	_, err = svc.CreateIdentity(context.Background(), req)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestCreateIdentity_RepoFailurePropagates(t *testing.T) {
	repo := &mockIdentityRepo{}
	repo.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, errors.New("unavailable"))
	svc := newSvc(repo)

	_, err := svc.CreateIdentity(context.Background(), domain.RegisterRequest{Email: "a@x.com", Password: "longenough"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrValidation))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateIdentity_LostRaceIsDuplicate(t *testing.T) {
	repo := &mockIdentityRepo{}
	repo.On("GetByEmail", mock.Anything, "a@x.com").Return(nil, domain.ErrNotFound)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Identity")).Return(domain.ErrConflict)
	svc := newSvc(repo)

	_, err := svc.CreateIdentity(context.Background(), domain.RegisterRequest{Email: "a@x.com", Password: "longenough"})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

// --- CheckPassword ---

func TestCheckPassword(t *testing.T) {
	svc := newSvc(memory.NewIdentityRepo())
	ident, err := svc.CreateIdentity(context.Background(), domain.RegisterRequest{Email: "a@x.com", Password: "longenough"})
	require.NoError(t, err)

	ok, err := svc.CheckPassword(context.Background(), ident.IdentityID, "longenough")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CheckPassword(context.Background(), ident.IdentityID, "wrong-password")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckPassword_UnknownIdentity(t *testing.T) {
	svc := newSvc(memory.NewIdentityRepo())
	_, err := svc.CheckPassword(context.Background(), "ghost", "whatever")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

// --- MarkVerified ---

func TestMarkVerified_Idempotent(t *testing.T) {
	svc := newSvc(memory.NewIdentityRepo())
	ident, err := svc.CreateIdentity(context.Background(), domain.RegisterRequest{Email: "a@x.com", Password: "longenough"})
	require.NoError(t, err)

	require.NoError(t, svc.MarkVerified(context.Background(), ident.IdentityID))
	require.NoError(t, svc.MarkVerified(context.Background(), ident.IdentityID))

	got, err := svc.GetIdentityByEmail(context.Background(), "A@x.com")
	require.NoError(t, err)
	assert.True(t, got.Verified)
}

func ptr(s string) *string { return &s }
