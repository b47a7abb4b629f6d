package auth_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fleetops/dispatch/internal/auth"
	"github.com/fleetops/dispatch/internal/domain"
	"github.com/fleetops/dispatch/internal/modules/fleet"
	dbtest "github.com/fleetops/dispatch/internal/testing"
)

func newAuthFixture(t *testing.T) (*auth.Service, *fleet.DriverRepository) {
	t.Helper()
	db, cleanup := dbtest.NewTestDB(t, "fleet")
	t.Cleanup(cleanup)
	drivers := fleet.NewDriverRepository(db.Conn(), zerolog.Nop())
	return auth.NewService(drivers, "test-secret", 7, zerolog.Nop()), drivers
}

func validInput() auth.RegisterInput {
	return auth.RegisterInput{
		Email:             "rider@example.com",
		Password:          "correct horse",
		Name:              "Rider",
		Phone:             "+911234567890",
		VehicleType:       "bike",
		VehicleCapacityKg: 20,
	}
}

func TestRegisterLoginVerifyRoundTrip(t *testing.T) {
	svc, _ := newAuthFixture(t)

	driver, token, err := svc.Register(validInput())
	require.NoError(t, err)
	assert.NotZero(t, driver.ID)
	assert.True(t, driver.IsActive)
	assert.NotEmpty(t, token)
	assert.NotEqual(t, "correct horse", driver.PasswordHash)

	_, loginToken, err := svc.Login("rider@example.com", "correct horse")
	require.NoError(t, err)

	id, err := svc.Verify(loginToken)
	require.NoError(t, err)
	assert.Equal(t, driver.ID, id.DriverID)
	assert.False(t, id.Admin)
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newAuthFixture(t)

	missing := validInput()
	missing.Name = ""
	_, _, err := svc.Register(missing)
	assert.ErrorIs(t, err, domain.ErrValidation)

	short := validInput()
	short.Password = "short"
	_, _, err = svc.Register(short)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	svc, _ := newAuthFixture(t)
	_, _, err := svc.Register(validInput())
	require.NoError(t, err)

	_, _, err = svc.Register(validInput())
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestLogin_BadCredentials(t *testing.T) {
	svc, _ := newAuthFixture(t)
	_, _, err := svc.Register(validInput())
	require.NoError(t, err)

	_, _, err = svc.Login("rider@example.com", "wrong password")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, _, err = svc.Login("nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestLogin_DeactivatedAccount(t *testing.T) {
	svc, drivers := newAuthFixture(t)
	driver, _, err := svc.Register(validInput())
	require.NoError(t, err)
	require.NoError(t, drivers.Deactivate(driver.ID))

	_, _, err = svc.Login("rider@example.com", "correct horse")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerify_RejectsTamperedAndForeignTokens(t *testing.T) {
	svc, _ := newAuthFixture(t)
	_, token, err := svc.Register(validInput())
	require.NoError(t, err)

	_, err = svc.Verify(token + "x")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Verify("not-a-token")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// Token signed with a different secret
	db, cleanup := dbtest.NewTestDB(t, "fleet")
	t.Cleanup(cleanup)
	other := auth.NewService(fleet.NewDriverRepository(db.Conn(), zerolog.Nop()), "other-secret", 7, zerolog.Nop())
	_, foreign, err := other.Register(validInput())
	require.NoError(t, err)
	_, err = svc.Verify(foreign)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerify_AdminClaimSurvivesRoundTrip(t *testing.T) {
	svc, drivers := newAuthFixture(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("ops password"), bcrypt.MinCost)
	require.NoError(t, err)

	fixture := dbtest.NewDriverFixture(9)
	fixture.IsAdmin = true
	fixture.PasswordHash = string(hash)
	_, err = drivers.Create(fixture)
	require.NoError(t, err)

	_, token, err := svc.Login(fixture.Email, "ops password")
	require.NoError(t, err)

	id, err := svc.Verify(token)
	require.NoError(t, err)
	assert.True(t, id.Admin)
}
