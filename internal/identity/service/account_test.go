package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
)

func registerVerifiedUser(t *testing.T, env *testEnv, username, password, phone string) domain.User {
	t.Helper()
	ctx := context.Background()

	key, err := env.accounts.StartPhoneVerification(ctx, phone)
	require.NoError(t, err)
	require.NoError(t, env.accounts.ConfirmPhoneCode(ctx, key, env.smsCodeFor(t, key)))

	user, err := env.accounts.Register(ctx, RegisterParams{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
		PhoneKey: key,
	})
	require.NoError(t, err)
	return user
}

func TestRegistrationRequiresVerifiedPhone(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	key, err := env.accounts.StartPhoneVerification(ctx, "+61400000001")
	require.NoError(t, err)

	// Registration before the code is confirmed must fail.
	_, err = env.accounts.Register(ctx, RegisterParams{
		Username: "alice", Password: "hunter2!", PhoneKey: key,
	})
	require.ErrorIs(t, err, ErrPhoneUnverified)

	require.NoError(t, env.accounts.ConfirmPhoneCode(ctx, key, env.smsCodeFor(t, key)))

	user, err := env.accounts.Register(ctx, RegisterParams{
		Username: "alice", Password: "hunter2!", PhoneKey: key,
	})
	require.NoError(t, err)
	require.Equal(t, "+61400000001", user.PhoneNumber)
	require.True(t, user.PhoneConfirmed)

	// The verification key is spent; it cannot seed another account.
	_, err = env.accounts.Register(ctx, RegisterParams{
		Username: "mallory", Password: "hunter2!", PhoneKey: key,
	})
	require.ErrorIs(t, err, ErrPhoneUnverified)
}

func TestFirstRegisteredUserIsAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first := registerVerifiedUser(t, env, "alice", "hunter2!", "+61400000001")
	second := registerVerifiedUser(t, env, "bob", "hunter2!", "+61400000002")

	firstRoles, err := env.roles.ListUserRoles(ctx, first.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(firstRoles))
	for _, r := range firstRoles {
		names = append(names, r.Name)
	}
	require.ElementsMatch(t, []string{domain.RoleAdmin, domain.RoleUser}, names)

	secondRoles, err := env.roles.ListUserRoles(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, secondRoles, 1)
	require.Equal(t, domain.RoleUser, secondRoles[0].Name)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	registerVerifiedUser(t, env, "alice", "hunter2!", "+61400000001")

	ctx := context.Background()
	key, err := env.accounts.StartPhoneVerification(ctx, "+61400000002")
	require.NoError(t, err)
	require.NoError(t, env.accounts.ConfirmPhoneCode(ctx, key, env.smsCodeFor(t, key)))

	_, err = env.accounts.Register(ctx, RegisterParams{
		Username: "alice", Password: "other", PhoneKey: key,
	})
	require.ErrorIs(t, err, ErrUsernameTaken)
}

func TestChangePasswordRotatesStampAndEvictsSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := registerVerifiedUser(t, env, "alice", "hunter2!", "+61400000001")

	res, err := env.login.PasswordLogin(ctx, "alice", "hunter2!")
	require.NoError(t, err)

	require.ErrorIs(t,
		env.accounts.ChangePassword(ctx, user.ID, "wrong", "NewPass123"),
		ErrInvalidCredentials)

	oldStamp := user.SecurityStamp
	require.NoError(t, env.accounts.ChangePassword(ctx, user.ID, "hunter2!", "NewPass123"))

	got, err := env.st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotEqual(t, oldStamp, got.SecurityStamp)

	_, err = env.tickets.Retrieve(ctx, res.SessionKey)
	require.ErrorIs(t, err, ErrSessionNotFound, "session dies with the old password")

	_, err = env.login.PasswordLogin(ctx, "alice", "hunter2!")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	done, err := env.login.PasswordLogin(ctx, "alice", "NewPass123")
	require.NoError(t, err)
	require.Equal(t, domain.StatusAuthenticated, done.Status)
}

func TestPasswordResetTokenIsSingleUse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := registerVerifiedUser(t, env, "alice", "hunter2!", "+61400000001")

	// Mint directly; delivery is the queue's concern.
	fresh, err := env.st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	token, err := env.accounts.signAccountToken(fresh, tokenPurposeReset)
	require.NoError(t, err)

	require.NoError(t, env.accounts.ResetPassword(ctx, token, "AfterReset1"))

	done, err := env.login.PasswordLogin(ctx, "alice", "AfterReset1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusAuthenticated, done.Status)

	// The reset rotated the stamp, which invalidates the token itself.
	require.ErrorIs(t, env.accounts.ResetPassword(ctx, token, "Again2"), ErrInvalidToken)
}

func TestAccountTokenPurposeIsEnforced(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := registerVerifiedUser(t, env, "alice", "hunter2!", "+61400000001")

	fresh, err := env.st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	confirmToken, err := env.accounts.signAccountToken(fresh, tokenPurposeConfirmEmail)
	require.NoError(t, err)

	// An email confirmation token cannot reset a password.
	require.ErrorIs(t,
		env.accounts.ResetPassword(ctx, confirmToken, "Sneaky1"),
		ErrInvalidToken)

	require.NoError(t, env.accounts.ConfirmEmail(ctx, confirmToken))

	got, err := env.st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, got.EmailConfirmed)
}

func TestAccountTokenGarbageRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	require.ErrorIs(t, env.accounts.ResetPassword(ctx, "not-a-token", "x"), ErrInvalidToken)
	require.ErrorIs(t, env.accounts.ConfirmEmail(ctx, ""), ErrInvalidToken)
}

func TestResetRequestDoesNotLeakExistence(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	require.NoError(t, env.accounts.IssuePasswordResetToken(ctx, "ghost"))
}

func TestRoleChangeEvictsSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := registerVerifiedUser(t, env, "admin", "hunter2!", "+61400000001")
	user := registerVerifiedUser(t, env, "bob", "hunter2!", "+61400000002")

	res, err := env.login.PasswordLogin(ctx, "bob", "hunter2!")
	require.NoError(t, err)

	oldStamp := user.SecurityStamp
	require.NoError(t, env.roles.Assign(ctx, admin.ID, user.ID, domain.RoleAdmin))

	got, err := env.st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotEqual(t, oldStamp, got.SecurityStamp)

	_, err = env.tickets.Retrieve(ctx, res.SessionKey)
	require.ErrorIs(t, err, ErrSessionNotFound,
		"a ticket minted before the role change must not survive it")

	require.ErrorIs(t,
		env.roles.Assign(ctx, admin.ID, user.ID, "no-such-role"),
		ErrRoleNotFound)
}
