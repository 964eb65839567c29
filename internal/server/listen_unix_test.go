//go:build unix

package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReusePortSharesListeningPort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := testConfig()
	config.ReusePort = true
	first, firstResults := startServer(t, ctx, config)

	config.Port = first.Port()
	second, secondResults := startServer(t, ctx, config)
	assert.Equal(t, first.Port(), second.Port())

	cancel()
	for _, results := range []<-chan runResult{firstResults, secondResults} {
		result := waitResult(t, results)
		require.NoError(t, result.err)
		assert.Equal(t, Cancelled, result.report.Reason)
	}
}
