package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

func TestServeExposesRegistry(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	reg := prometheus.NewRegistry()
	NewJobMetrics(reg).ObserveRun("outbox_retention", time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	Serve(ctx, addr, reg, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ = io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, string(body), "beatstore_cron_job_runs_total")
}

func TestServeDisabledWithoutAddr(t *testing.T) {
	Serve(context.Background(), "", prometheus.NewRegistry(), nil)
}
