package cmd

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/encodeous/skein/core"
	"github.com/encodeous/skein/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimSampleNetwork(t *testing.T) {
	cfg, weights := mock.MockCfg()
	res, err := runSim(cfg, weights, simOpts{
		From:     "bob",
		To:       "ada",
		Count:    5,
		Interval: 100 * time.Millisecond,
		Duration: 5 * time.Second,
		Inspect:  true,
		Seed:     1,
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	assert.Equal(t, 5, res.Sent)
	assert.Equal(t, 5, res.Delivered)
	assert.Equal(t, 5, res.Events[core.DataDelivered])
	assert.Equal(t, 1, res.Events[core.RouteResolved])
	assert.Zero(t, res.Events[core.DiscoveryExhausted])
	assert.Len(t, res.Tables, 5)
	assert.Contains(t, res.Tables["bob"], "Route Cache:")

	var out bytes.Buffer
	printSim(&out, res)
	assert.Contains(t, out.String(), "sent 5, delivered 5")
	assert.Contains(t, out.String(), "== ada ==")
}

func TestSimRejectsUnknownNodes(t *testing.T) {
	cfg, weights := mock.MockCfg()
	log := slog.New(slog.DiscardHandler)
	_, err := runSim(cfg, weights, simOpts{From: "zed", To: "ada"}, log)
	assert.Error(t, err)
	_, err = runSim(cfg, weights, simOpts{From: "bob", To: "bob"}, log)
	assert.Error(t, err)
	_, err = runSim(cfg, weights, simOpts{From: "bob", To: "ada", Fail: []string{"bob-zed@1s"}}, log)
	assert.Error(t, err)
}

func TestParseFailure(t *testing.T) {
	lf, err := parseFailure("bob-kat@500ms")
	require.NoError(t, err)
	assert.Equal(t, linkFailure{"bob", "kat", 500 * time.Millisecond}, lf)

	for _, bad := range []string{"bob-kat", "bobkat@1s", "bob-kat@soon"} {
		_, err = parseFailure(bad)
		assert.Error(t, err, bad)
	}
}
