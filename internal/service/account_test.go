package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellus/tellus/internal/auth"
	"github.com/tellus/tellus/internal/model"
)

type accountFixture struct {
	svc      *AccountService
	store    *memStore
	sessions *memSessions
	boxCache *memCache
	objects  *memObjects
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	issuer, err := auth.NewSessionIssuer(testGateKey, time.Hour)
	require.NoError(t, err)

	f := &accountFixture{
		store:    newMemStore(),
		sessions: newMemSessions(),
		boxCache: newMemCache(),
		objects:  newMemObjects(),
	}
	f.svc = NewAccountService(f.store, issuer, f.sessions, f.boxCache, f.objects, testLogger())
	f.svc.MinLoginDuration = 20 * time.Millisecond
	return f
}

func (f *accountFixture) signUp(t *testing.T) *AuthResult {
	t.Helper()
	res, err := f.svc.SignUp(context.Background(), SignUpInput{
		Username:        "warden",
		Email:           " Warden@Example.com ",
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
	})
	require.NoError(t, err)
	return res
}

func TestAccountService_SignUp(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	res := f.signUp(t)
	assert.Equal(t, "warden@example.com", res.Profile.Email)
	assert.NotEmpty(t, res.Token)

	session, err := f.svc.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Profile.ID, session.UserID)

	_, err = f.svc.SignUp(ctx, SignUpInput{Username: "x", Email: "warden@example.com", Password: "hunter22", ConfirmPassword: "hunter22"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	tests := []struct {
		name  string
		input SignUpInput
		want  error
	}{
		{"short password", SignUpInput{Username: "a", Email: "a@b.co", Password: "12345", ConfirmPassword: "12345"}, auth.ErrPasswordTooShort},
		{"mismatch", SignUpInput{Username: "a", Email: "a@b.co", Password: "123456", ConfirmPassword: "654321"}, auth.ErrPasswordMismatch},
		{"bad email", SignUpInput{Username: "a", Email: "not-an-email", Password: "123456", ConfirmPassword: "123456"}, ErrEmailRequired},
		{"blank username", SignUpInput{Username: " ", Email: "a@b.co", Password: "123456", ConfirmPassword: "123456"}, ErrUsernameRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SignUp(ctx, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAccountService_Login(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	f.signUp(t)

	res, err := f.svc.Login(ctx, "WARDEN@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "warden", res.Profile.Username)

	for _, tc := range []struct{ email, password string }{
		{"warden@example.com", "wrong-password"},
		{"nobody@example.com", "hunter22"},
	} {
		start := time.Now()
		_, err := f.svc.Login(ctx, tc.email, tc.password)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.GreaterOrEqual(t, time.Since(start), f.svc.MinLoginDuration)
	}
}

func TestAccountService_LogoutRevokes(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	res := f.signUp(t)

	require.NoError(t, f.svc.Logout(ctx, res.Session))
	_, err := f.svc.Authenticate(ctx, res.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAccountService_ChangePassword_RevokesOtherSessions(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	first := f.signUp(t)
	second, err := f.svc.Login(ctx, "warden@example.com", "hunter22")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, first.Session, "abc", "abc"), auth.ErrPasswordTooShort)
	require.NoError(t, f.svc.ChangePassword(ctx, first.Session, "new-secret", "new-secret"))

	_, err = f.svc.Authenticate(ctx, first.Token)
	assert.NoError(t, err, "calling session stays valid")
	_, err = f.svc.Authenticate(ctx, second.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.Login(ctx, "warden@example.com", "new-secret")
	assert.NoError(t, err)
}

func TestAccountService_UpdateUsername(t *testing.T) {
	f := newAccountFixture(t)
	res := f.signUp(t)

	p, err := f.svc.UpdateUsername(context.Background(), res.Profile.ID, "  head warden ")
	require.NoError(t, err)
	assert.Equal(t, "head warden", p.Username)

	_, err = f.svc.UpdateUsername(context.Background(), res.Profile.ID, "")
	assert.ErrorIs(t, err, ErrUsernameRequired)
}

func TestAccountService_DeleteAccount(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	res := f.signUp(t)
	adminID := res.Profile.ID

	f.store.boxes["b1"] = &model.Box{ID: "b1", AdminID: adminID, Token: "boxtoken0001"}
	f.store.boxes["b2"] = &model.Box{ID: "b2", AdminID: "someone-else", Token: "boxtoken0002"}
	f.store.complaints["c1"] = &model.Complaint{ID: "c1", BoxID: "b1", Attachment: &model.Attachment{Key: "CPL-A/1.png"}}
	f.objects.objects["CPL-A/1.png"] = []byte("x")

	require.NoError(t, f.svc.DeleteAccount(ctx, adminID))

	assert.NotContains(t, f.store.boxes, "b1")
	assert.Contains(t, f.store.boxes, "b2")
	assert.Zero(t, f.objects.count())
	assert.Equal(t, []string{"boxtoken0001"}, f.boxCache.deleted)

	_, err := f.svc.Authenticate(ctx, res.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.svc.GetProfile(ctx, adminID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteAccount(ctx, adminID), ErrNotFound)
}
