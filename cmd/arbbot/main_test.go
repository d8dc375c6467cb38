package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"run", "check", "withdraw"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}

	assert.NotNil(t, runCmd.Flags().Lookup("dry-run"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestWithdrawRejectsBadToken(t *testing.T) {
	withdrawToken = "0x1234"
	t.Cleanup(func() { withdrawToken = "" })

	err := withdrawCmd.RunE(withdrawCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token address")
}
