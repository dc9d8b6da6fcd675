package cryptox

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken(TokenSize256)
	require.NoError(t, err)
	require.Len(t, tok, 43) // 32 bytes base64url, no padding

	other, err := GenerateToken(TokenSize256)
	require.NoError(t, err)
	require.NotEqual(t, tok, other)

	_, err = GenerateToken(0)
	require.Error(t, err)
}

func TestFingerprintTokenDeterministic(t *testing.T) {
	t.Parallel()

	fp1 := FingerprintToken("opaque-token")
	fp2 := FingerprintToken("opaque-token")
	require.Equal(t, fp1, fp2)
	require.NotEqual(t, fp1, FingerprintToken("different-token"))
	require.Len(t, fp1, 43)
}

func TestGenerateNumericCode(t *testing.T) {
	t.Parallel()

	for range 50 {
		code, err := GenerateNumericCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, 100000)
		require.LessOrEqual(t, n, 999999)
	}

	_, err := GenerateNumericCode(2)
	require.Error(t, err)
}
