package service

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
)

func TestCreateCodeProducesSixDigits(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	key, err := env.codes.CreateCode(ctx, domain.CodePurposePhoneVerify, "+61400000001", "")
	require.NoError(t, err)
	require.NotEmpty(t, key)

	rec, err := env.codes.Lookup(ctx, key)
	require.NoError(t, err)
	require.Len(t, rec.Code, 6)

	n, err := strconv.Atoi(rec.Code)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 100000)
	require.LessOrEqual(t, n, 999999)
	require.Equal(t, "+61400000001", rec.PhoneNumber)
	require.False(t, rec.Confirmed)
}

func TestConfirmThenConsume(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	key, err := env.codes.CreateCode(ctx, domain.CodePurposePhoneVerify, "+61400000001", "")
	require.NoError(t, err)
	code := env.smsCodeFor(t, key)

	require.ErrorIs(t, env.codes.Confirm(ctx, key, "000000"), ErrInvalidOrExpiredCode)
	require.NoError(t, env.codes.Confirm(ctx, key, code))

	rec, err := env.codes.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, rec.Confirmed)

	require.NoError(t, env.codes.Consume(ctx, key, code))
	require.ErrorIs(t, env.codes.Consume(ctx, key, code), ErrInvalidOrExpiredCode)
}

func TestLookupUnknownKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.codes.Lookup(ctx, "no-such-key")
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
}

func TestCodeKeysAreUnpredictable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	k1, err := env.codes.CreateCode(ctx, domain.CodePurposeSMSLogin, "+61400000001", "")
	require.NoError(t, err)
	k2, err := env.codes.CreateCode(ctx, domain.CodePurposeSMSLogin, "+61400000001", "")
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)
}
