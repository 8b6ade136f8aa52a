package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandFlags(t *testing.T) {
	cmd := rootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", "worker.yaml"}))

	path, err := cmd.Flags().GetString("config")
	require.NoError(t, err)
	assert.Equal(t, "worker.yaml", path)

	addr, err := cmd.Flags().GetString("health-addr")
	require.NoError(t, err)
	assert.Equal(t, ":8081", addr)
}
