package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quorumsec/gatehouse/internal/identity/domain"
)

func TestEvaluateSecondFactor(t *testing.T) {
	t.Parallel()

	key := "JBSWY3DPEHPK3PXP"

	cases := []struct {
		name string
		user domain.User
		want domain.SecondFactor
	}{
		{
			name: "two-factor off",
			user: domain.User{},
			want: domain.SecondFactorNone,
		},
		{
			name: "two-factor off ignores configured factors",
			user: domain.User{AuthenticatorKey: &key, PhoneNumber: "+614", PhoneConfirmed: true},
			want: domain.SecondFactorNone,
		},
		{
			name: "authenticator configured",
			user: domain.User{TwoFactorEnabled: true, AuthenticatorKey: &key},
			want: domain.SecondFactorAuthenticator,
		},
		{
			name: "authenticator beats sms",
			user: domain.User{
				TwoFactorEnabled: true, AuthenticatorKey: &key,
				PhoneNumber: "+614", PhoneConfirmed: true,
			},
			want: domain.SecondFactorAuthenticator,
		},
		{
			name: "confirmed phone falls back to sms",
			user: domain.User{TwoFactorEnabled: true, PhoneNumber: "+614", PhoneConfirmed: true},
			want: domain.SecondFactorSMS,
		},
		{
			name: "unconfirmed phone is not a factor",
			user: domain.User{TwoFactorEnabled: true, PhoneNumber: "+614"},
			want: domain.SecondFactorUnconfigured,
		},
		{
			name: "confirmed flag without number is not a factor",
			user: domain.User{TwoFactorEnabled: true, PhoneConfirmed: true},
			want: domain.SecondFactorUnconfigured,
		},
		{
			name: "empty authenticator key does not count",
			user: func() domain.User {
				empty := ""
				return domain.User{TwoFactorEnabled: true, AuthenticatorKey: &empty}
			}(),
			want: domain.SecondFactorUnconfigured,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, EvaluateSecondFactor(tc.user))
		})
	}
}

func TestNormalizeOTP(t *testing.T) {
	t.Parallel()

	require.Equal(t, "123456", normalizeOTP("123 456"))
	require.Equal(t, "123456", normalizeOTP("123-456"))
	require.Equal(t, "123456", normalizeOTP(" 12 34-56\t"))
	require.Equal(t, "123456", normalizeOTP("123456"))
}
