package passphrase

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceReadsEnvironment(t *testing.T) {
	t.Setenv("RICO_TEST_SECRET", "s3cret")
	src := NewSource("RICO_TEST_SECRET", "signing secret")
	value, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, "s3cret", value)

	t.Setenv("RICO_TEST_SECRET", "changed")
	value, err = src.Get()
	require.NoError(t, err)
	require.Equal(t, "s3cret", value, "value is cached after the first call")
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("RICO_TEST_SECRET", "  ")
	_, err := NewSource("RICO_TEST_SECRET", "").Get()
	require.ErrorContains(t, err, "RICO_TEST_SECRET is set but empty")
}
