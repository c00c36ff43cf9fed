package services

import (
	"context"
	"testing"

	"jpjportal_go/database/dbtest"
	"jpjportal_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRegistration() RegisterInput {
	return RegisterInput{
		Username: "nurul",
		Password: "s3cretpass",
		Email:    "Nurul@Example.com",
		FullName: "Nurul Aina",
		ICNumber: "950505-10-5678",
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	db := dbtest.New(t)
	svc := NewAuthService(db)
	ctx := context.Background()

	user, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.Equal(t, "nurul@example.com", user.Email)
	assert.NotEqual(t, "s3cretpass", user.Password)
	require.NotNil(t, user.Student)
	assert.Equal(t, "950505105678", user.Student.ICNumber)

	got, err := svc.Authenticate(ctx, LoginInput{Username: "nurul", Password: "s3cretpass"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	require.NotNil(t, got.Student)

	_, err = svc.Authenticate(ctx, LoginInput{Username: "nurul", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, LoginInput{Username: "ghost", Password: "s3cretpass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).Update("status", "suspended").Error)
	_, err = svc.Authenticate(ctx, LoginInput{Username: "nurul", Password: "s3cretpass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterRejectsTakenFields(t *testing.T) {
	db := dbtest.New(t)
	svc := NewAuthService(db)
	ctx := context.Background()
	_, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	again := validRegistration()
	_, err = svc.Register(ctx, again)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "username")
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "ic_number")

	bad := validRegistration()
	bad.Username, bad.Password, bad.ICNumber = "x!", "short", "12"
	_, err = svc.Register(ctx, bad)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "username")
	assert.Contains(t, verr.Fields, "password")
	assert.Contains(t, verr.Fields, "ic_number")
}

func TestChangePassword(t *testing.T) {
	db := dbtest.New(t)
	svc := NewAuthService(db)
	ctx := context.Background()
	user, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, ChangePasswordInput{CurrentPassword: "nope", NewPassword: "another-pass"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, ChangePasswordInput{CurrentPassword: "s3cretpass", NewPassword: "another-pass"}))
	_, err = svc.Authenticate(ctx, LoginInput{Username: "nurul", Password: "another-pass"})
	assert.NoError(t, err)
}
