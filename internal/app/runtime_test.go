package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInTestMode(t *testing.T) {
	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(TestModeEnv, "no")
	RefreshTestMode()
	require.False(t, InTestMode())

	t.Setenv(TestModeEnv, "true")
	RefreshTestMode()
	require.True(t, InTestMode())
}
