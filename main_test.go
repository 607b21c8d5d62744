package main

import (
	"path/filepath"
	"testing"

	"github.com/martin8756/termelesinaplo/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ReturnsConfigErrors(t *testing.T) {
	err := run([]string{"--session-ttl", "0s"})
	assert.ErrorContains(t, err, "loading config")

	err = run([]string{"--database-url", memoryDatabase, "--log-level", "*:nonsense"})
	assert.ErrorContains(t, err, "log level")
}

func TestRun_ReturnsSessionStoreErrors(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	held, err := session.OpenStore(dir)
	require.NoError(t, err)
	defer held.Close()

	// The directory lock is taken, so opening it again fails and run reports it.
	err = run([]string{"--database-url", memoryDatabase, "--session-dir", dir})
	assert.ErrorContains(t, err, "opening session store")
}
