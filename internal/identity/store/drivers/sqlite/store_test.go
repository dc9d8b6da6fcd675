package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
	"github.com/quorumsec/gatehouse/internal/identity/store"
	"github.com/quorumsec/gatehouse/pkg/idx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func createTestUser(t *testing.T, st *Store, username string) domain.User {
	t.Helper()

	u := domain.User{
		ID:            idx.New().String(),
		Username:      username,
		PasswordHash:  "hash",
		SecurityStamp: "stamp",
	}
	require.NoError(t, st.Users().CreateUser(context.Background(), u))
	return u
}

func TestInsertTicketEnforcesOnePerUser(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	user := createTestUser(t, st, "alice")

	first := domain.Ticket{
		ID:           idx.New().String(),
		UserID:       user.ID,
		Payload:      []byte("one"),
		LastActivity: time.Now().UTC(),
	}
	require.NoError(t, st.Tickets().InsertTicket(ctx, first))

	second := first
	second.ID = idx.New().String()
	second.Payload = []byte("two")
	require.Error(t, st.Tickets().InsertTicket(ctx, second),
		"schema must reject a second ticket for the same user")

	// The evict-then-insert path replaces the ticket cleanly.
	n, err := st.Tickets().DeleteTicketsForUser(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.NoError(t, st.Tickets().InsertTicket(ctx, second))

	got, err := st.Tickets().GetTicketByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)
	require.Equal(t, []byte("two"), got.Payload)
}

func TestTouchTicketSlidesActivity(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	user := createTestUser(t, st, "alice")

	start := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, st.Tickets().InsertTicket(ctx, domain.Ticket{
		ID:           idx.New().String(),
		UserID:       user.ID,
		Payload:      []byte("p"),
		LastActivity: start,
	}))

	now := time.Now().UTC()
	require.NoError(t, st.Tickets().TouchTicket(ctx, user.ID, now))

	got, err := st.Tickets().GetTicketByUser(ctx, user.ID)
	require.NoError(t, err)
	require.WithinDuration(t, now, got.LastActivity, time.Second)

	// Touching a missing ticket is not an error.
	require.NoError(t, st.Tickets().TouchTicket(ctx, "no-such-user", now))
}

func TestDeleteExpiredTicketsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	expired := createTestUser(t, st, "expired")
	live := createTestUser(t, st, "live")
	unbounded := createTestUser(t, st, "unbounded")

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	require.NoError(t, st.Tickets().InsertTicket(ctx, domain.Ticket{
		ID: idx.New().String(), UserID: expired.ID, Payload: []byte("x"),
		LastActivity: now, ExpiresAt: &past,
	}))
	require.NoError(t, st.Tickets().InsertTicket(ctx, domain.Ticket{
		ID: idx.New().String(), UserID: live.ID, Payload: []byte("x"),
		LastActivity: now, ExpiresAt: &future,
	}))
	require.NoError(t, st.Tickets().InsertTicket(ctx, domain.Ticket{
		ID: idx.New().String(), UserID: unbounded.ID, Payload: []byte("x"),
		LastActivity: now,
	}))

	n, err := st.Tickets().DeleteExpiredTickets(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = st.Tickets().DeleteExpiredTickets(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n, "second immediate sweep removes nothing")

	_, err = st.Tickets().GetTicketByUser(ctx, live.ID)
	require.NoError(t, err)
	_, err = st.Tickets().GetTicketByUser(ctx, unbounded.ID)
	require.NoError(t, err)
}

func TestListOnlineSessionsFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	now := time.Now().UTC()
	cutoff := now.Add(-30 * time.Minute)

	recent := createTestUser(t, st, "recent")
	idle := createTestUser(t, st, "idle")
	expired := createTestUser(t, st, "gone")
	fresher := createTestUser(t, st, "fresher")

	past := now.Add(-time.Minute)
	require.NoError(t, st.Tickets().InsertTicket(ctx, domain.Ticket{
		ID: idx.New().String(), UserID: recent.ID, Payload: []byte("x"),
		LastActivity: now.Add(-10 * time.Minute),
	}))
	require.NoError(t, st.Tickets().InsertTicket(ctx, domain.Ticket{
		ID: idx.New().String(), UserID: idle.ID, Payload: []byte("x"),
		LastActivity: now.Add(-2 * time.Hour),
	}))
	require.NoError(t, st.Tickets().InsertTicket(ctx, domain.Ticket{
		ID: idx.New().String(), UserID: expired.ID, Payload: []byte("x"),
		LastActivity: now, ExpiresAt: &past,
	}))
	require.NoError(t, st.Tickets().InsertTicket(ctx, domain.Ticket{
		ID: idx.New().String(), UserID: fresher.ID, Payload: []byte("x"),
		LastActivity: now.Add(-1 * time.Minute),
	}))

	sessions, err := st.Tickets().ListOnlineSessions(ctx, now, cutoff)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "fresher", sessions[0].Username, "most recently active first")
	require.Equal(t, "recent", sessions[1].Username)

	count, err := st.Tickets().CountActiveSessions(ctx, now, cutoff)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestConsumeCodeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	now := time.Now().UTC()

	code := domain.OneTimeCode{
		ID:          idx.New().String(),
		Purpose:     domain.CodePurposeSMSLogin,
		PhoneNumber: "+61400000001",
		Code:        "123456",
		Key:         "key-1",
		ExpiresAt:   now.Add(5 * time.Minute),
	}
	require.NoError(t, st.OneTimeCodes().CreateCode(ctx, code))

	ok, err := st.OneTimeCodes().ConsumeCode(ctx, "key-1", "999999", now)
	require.NoError(t, err)
	require.False(t, ok, "wrong code must not consume")

	ok, err = st.OneTimeCodes().ConsumeCode(ctx, "key-1", "123456", now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.OneTimeCodes().ConsumeCode(ctx, "key-1", "123456", now)
	require.NoError(t, err)
	require.False(t, ok, "a consumed code can never be redeemed again")

	// Still readable after consumption.
	got, err := st.OneTimeCodes().GetCodeByKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, got.ConsumedAt)
}

func TestConsumeCodeRejectsExpired(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, st.OneTimeCodes().CreateCode(ctx, domain.OneTimeCode{
		ID:          idx.New().String(),
		Purpose:     domain.CodePurposePhoneVerify,
		PhoneNumber: "+61400000002",
		Code:        "654321",
		Key:         "key-2",
		ExpiresAt:   now.Add(-time.Second),
	}))

	ok, err := st.OneTimeCodes().ConsumeCode(ctx, "key-2", "654321", now)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConfirmCodeRequiresMatch(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, st.OneTimeCodes().CreateCode(ctx, domain.OneTimeCode{
		ID:          idx.New().String(),
		Purpose:     domain.CodePurposePhoneVerify,
		PhoneNumber: "+61400000003",
		Code:        "111222",
		Key:         "key-3",
		ExpiresAt:   now.Add(5 * time.Minute),
	}))

	ok, err := st.OneTimeCodes().ConfirmCode(ctx, "key-3", "000000", now)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = st.OneTimeCodes().ConfirmCode(ctx, "key-3", "111222", now)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := st.OneTimeCodes().GetCodeByKey(ctx, "key-3")
	require.NoError(t, err)
	require.True(t, got.Confirmed)
	require.Nil(t, got.ConsumedAt, "confirmation does not consume")
}

func TestRecoveryCodeConsumeOutcomes(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	user := createTestUser(t, st, "alice")

	require.NoError(t, st.RecoveryCodes().CreateRecoveryCode(ctx, user.ID, "hash-a"))

	outcome, err := st.RecoveryCodes().ConsumeRecoveryCode(ctx, user.ID, "hash-b")
	require.NoError(t, err)
	require.Equal(t, store.RecoveryConsumeMiss, outcome)

	outcome, err = st.RecoveryCodes().ConsumeRecoveryCode(ctx, user.ID, "hash-a")
	require.NoError(t, err)
	require.Equal(t, store.RecoveryConsumeOK, outcome)

	outcome, err = st.RecoveryCodes().ConsumeRecoveryCode(ctx, user.ID, "hash-a")
	require.NoError(t, err)
	require.Equal(t, store.RecoveryConsumeSpent, outcome)

	count, err := st.RecoveryCodes().CountRecoveryCodes(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 0, count, "spent codes do not count as remaining")
}

func TestChallengeAttemptsAndExpiry(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	user := createTestUser(t, st, "alice")
	now := time.Now().UTC()

	require.NoError(t, st.LoginChallenges().CreateChallenge(ctx, domain.LoginChallenge{
		Token:     "tok-1",
		UserID:    user.ID,
		Method:    "authenticator",
		ExpiresAt: now.Add(5 * time.Minute),
	}))

	got, err := st.LoginChallenges().GetChallenge(ctx, "tok-1", now)
	require.NoError(t, err)
	require.Equal(t, 0, got.Attempts)

	got, err = st.LoginChallenges().IncrementChallengeAttempts(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, 1, got.Attempts)

	got, err = st.LoginChallenges().IncrementChallengeAttempts(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, 2, got.Attempts)

	// Expired challenges are invisible to GetChallenge.
	_, err = st.LoginChallenges().GetChallenge(ctx, "tok-1", now.Add(10*time.Minute))
	require.ErrorIs(t, err, store.ErrNotFound)

	n, err := st.LoginChallenges().DeleteExpiredChallenges(ctx, now.Add(10*time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestCreateMapsUniqueViolations(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	createTestUser(t, st, "alice")
	dup := domain.User{
		ID:            idx.New().String(),
		Username:      "alice",
		PasswordHash:  "hash",
		SecurityStamp: "stamp",
	}
	err := st.Users().CreateUser(ctx, dup)
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	role := domain.Role{ID: idx.New().String(), Name: "admin"}
	require.NoError(t, st.Roles().CreateRole(ctx, role))

	err = st.Roles().CreateRole(ctx, domain.Role{ID: idx.New().String(), Name: "admin"})
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestUserLockoutBookkeeping(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	user := createTestUser(t, st, "alice")

	n, err := st.Users().IncrementAccessFailed(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = st.Users().IncrementAccessFailed(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	until := time.Now().UTC().Add(15 * time.Minute)
	require.NoError(t, st.Users().SetLockoutEnd(ctx, user.ID, &until))

	got, err := st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, got.IsLockedOut(time.Now().UTC()))

	require.NoError(t, st.Users().ResetAccessFailed(ctx, user.ID))
	require.NoError(t, st.Users().SetLockoutEnd(ctx, user.ID, nil))

	got, err = st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.AccessFailedCount)
	require.False(t, got.IsLockedOut(time.Now().UTC()))
}

func TestUpdatePasswordHashRotatesStamp(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	user := createTestUser(t, st, "alice")

	require.NoError(t, st.Users().UpdatePasswordHash(ctx, user.ID, "new-hash", "new-stamp"))

	got, err := st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "new-hash", got.PasswordHash)
	require.Equal(t, "new-stamp", got.SecurityStamp)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	user := createTestUser(t, st, "alice")

	require.NoError(t, st.Tickets().InsertTicket(ctx, domain.Ticket{
		ID: idx.New().String(), UserID: user.ID, Payload: []byte("keep"),
		LastActivity: time.Now().UTC(),
	}))

	boom := context.DeadlineExceeded
	err := st.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Tickets().DeleteTicketsForUser(ctx, user.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := st.Tickets().GetTicketByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("keep"), got.Payload)
}
