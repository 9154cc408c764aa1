package service

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCredentialVerifier_HashVerify(t *testing.T) {
	t.Parallel()

	v := NewCredentialVerifier(bcrypt.MinCost)

	h, err := v.Hash("s3cret!")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret!", h)

	cost, err := bcrypt.Cost([]byte(h))
	require.NoError(t, err)
	require.Equal(t, bcrypt.MinCost, cost)

	require.True(t, v.Verify("s3cret!", h))
	require.False(t, v.Verify("S3cret!", h))

	h2, err := v.Hash("s3cret!")
	require.NoError(t, err)
	require.NotEqual(t, h, h2)
}

func TestCredentialVerifier_MalformedHash(t *testing.T) {
	t.Parallel()

	v := NewCredentialVerifier(bcrypt.MinCost)

	for _, hash := range []string{"", "plain-text", "$2a$10$short", "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA"} {
		require.NotPanics(t, func() {
			require.False(t, v.Verify("anything", hash))
		}, hash)
	}
}

func TestCredentialVerifier_CostOutOfRange(t *testing.T) {
	t.Parallel()

	require.Equal(t, bcrypt.DefaultCost, NewCredentialVerifier(0).cost)
	require.Equal(t, bcrypt.DefaultCost, NewCredentialVerifier(bcrypt.MaxCost+1).cost)
	require.Equal(t, 12, NewCredentialVerifier(12).cost)
}

func TestCredentialVerifier_Burn(t *testing.T) {
	t.Parallel()

	v := NewCredentialVerifier(bcrypt.MinCost)
	require.NotPanics(t, func() {
		v.Burn("x")
		v.Burn("y")
	})
	require.NotEmpty(t, v.dummy)
}
