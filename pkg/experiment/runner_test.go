package experiment_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denisstrizhkin/network-labs/internal/metrics"
	"github.com/denisstrizhkin/network-labs/pkg/arq"
	"github.com/denisstrizhkin/network-labs/pkg/experiment"
	"github.com/denisstrizhkin/network-labs/pkg/transfer"
)

func fastConfig() arq.Config {
	c := arq.DefaultConfig()
	c.RoundTimeout = arq.Duration(20 * time.Millisecond)
	c.PollInterval = arq.Duration(2 * time.Millisecond)
	c.TransferTimeout = arq.Duration(60 * time.Second)
	c.Linger = arq.Duration(time.Second)
	return c
}

func TestRunner_LossSweep(t *testing.T) {
	m := metrics.NewPrometheus("arq_experiment_test", prometheus.NewRegistry())
	rn := experiment.NewRunner(fastConfig(), nil,
		experiment.WithSeed(11), experiment.WithRecorder(m), experiment.WithLinkRecorder(m))

	msg := strings.Repeat("A", 1000)
	records, err := rn.LossSweep(4, []float64{0, 0.3}, msg)
	require.NoError(t, err)
	require.Len(t, records, 4)

	for i, proto := range []arq.Protocol{arq.GoBackN, arq.SelectiveRepeat, arq.GoBackN, arq.SelectiveRepeat} {
		r := records[i]
		assert.Equal(t, proto, r.Protocol)
		assert.Equal(t, 4, r.WindowSize)
		assert.False(t, r.Failed(), r.Err)
		assert.Equal(t, 4, r.Total)
		assert.Equal(t, 1, r.Attempts)
		assert.Equal(t, r.Sent-r.Total, r.Retransmit)
	}
	assert.Equal(t, 1.0, records[0].Efficiency)
	assert.Zero(t, records[0].Retransmit)
	assert.Equal(t, 1.0, records[1].Efficiency)
	assert.True(t, records[2].Efficiency <= 1.0)
	assert.True(t, records[3].Efficiency <= 1.0)

	stored, err := rn.Store().All()
	require.NoError(t, err)
	assert.Len(t, stored, 4)
}

func TestRunner_WindowSweep(t *testing.T) {
	dir, cleanup := tempDir(t)
	defer cleanup()

	store, err := experiment.BoltDBStore(filepath.Join(dir, "sweep.db"))
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	rn := experiment.NewRunner(fastConfig(), store, experiment.WithSeed(5))
	records, err := rn.WindowSweep(0.2, []int{1, 8}, strings.Repeat("B", 600))
	require.NoError(t, err)
	require.Len(t, records, 4)

	paths, err := experiment.WriteDatFiles(dir, records, experiment.AxisWindow)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	raw, err := ioutil.ReadFile(filepath.Join(dir, "gbn_vs_window.dat"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "1 "))
	assert.True(t, strings.HasPrefix(lines[1], "8 "))
}

func TestRunner_RecordsFailures(t *testing.T) {
	conf := fastConfig()
	conf.TransferTimeout = arq.Duration(100 * time.Millisecond)
	conf.Linger = 0

	rn := experiment.NewRunner(conf, nil,
		experiment.WithRetrier(experiment.NewRetrier(1)), experiment.WithSeed(1))

	rec, err := rn.Run(transfer.Params{Protocol: arq.GoBackN, WindowSize: 2, Loss: 1}, "lost")
	require.Error(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Failed())
	assert.Equal(t, 2, rec.Attempts)

	got, err := rn.Store().Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Err, got.Err)

	// A failing point does not stop the sweep.
	records, err := rn.LossSweep(2, []float64{1}, "lost")
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.True(t, r.Failed())
	}
}

func TestRunner_InvalidParams(t *testing.T) {
	rn := experiment.NewRunner(fastConfig(), nil)

	_, err := rn.Run(transfer.Params{Protocol: "stop-and-wait", WindowSize: 1}, "x")
	require.Error(t, err)

	rec, err := rn.Run(transfer.Params{Protocol: arq.SelectiveRepeat, WindowSize: 0, Direct: true}, "x")
	require.ErrorIs(t, err, arq.ErrInvalidWindow)
	assert.Nil(t, rec)

	rec, err = rn.Run(transfer.Params{Protocol: arq.GoBackN, WindowSize: 2, Loss: 1.5}, "x")
	require.ErrorIs(t, err, arq.ErrInvalidLoss)
	assert.Nil(t, rec)
	stored, err := rn.Store().All()
	require.NoError(t, err)
	assert.Empty(t, stored)

	conf := fastConfig()
	conf.SegmentSize = 0
	_, err = experiment.NewRunner(conf, nil).LossSweep(1, []float64{0}, "x")
	require.Error(t, err)
}

func TestConfig(t *testing.T) {
	dir, cleanup := tempDir(t)
	defer cleanup()

	conf, err := experiment.ReadConfig("")
	require.NoError(t, err)
	assert.Equal(t, experiment.DefaultConfig(), conf)
	assert.Equal(t, strings.Repeat("A", 1000), conf.Message())
	assert.Len(t, conf.Experiment.LossRates, 10)
	assert.Equal(t, []int{5, 10, 20}, conf.Experiment.WindowSizes)

	path := filepath.Join(dir, "arq-sim.json")
	require.NoError(t, ioutil.WriteFile(path, []byte(`{
		"arq": {"round_timeout": "50ms"},
		"experiment": {"fixed_window": 3, "window_sizes": [2, 4]},
		"store": {"type": "file", "location": "`+filepath.Join(dir, "records")+`"}
	}`), 0600))

	conf, err = experiment.ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, arq.Duration(50*time.Millisecond), conf.ARQ.RoundTimeout)
	assert.Equal(t, arq.DefaultConfig().SegmentSize, conf.ARQ.SegmentSize)
	assert.Equal(t, 3, conf.Experiment.FixedWindow)
	assert.Equal(t, []int{2, 4}, conf.Experiment.WindowSizes)
	assert.Equal(t, experiment.DefaultFixedLoss, conf.Experiment.FixedLoss)

	store, err := conf.ResultStore()
	require.NoError(t, err)
	require.NoError(t, store.Close())
	_, err = os.Stat(filepath.Join(dir, "records"))
	require.NoError(t, err)

	require.NoError(t, ioutil.WriteFile(path, []byte(`{"store": {"type": "redis"}}`), 0600))
	_, err = experiment.ReadConfig(path)
	require.Error(t, err)

	require.NoError(t, ioutil.WriteFile(path, []byte(`{"experiment": {"loss_rates": [1.5]}}`), 0600))
	_, err = experiment.ReadConfig(path)
	require.Error(t, err)
}

func TestConfig_ApplyEnv(t *testing.T) {
	require.NoError(t, os.Setenv(experiment.EnvRoundTimeout, "75ms"))
	require.NoError(t, os.Setenv(experiment.EnvFixedWindow, "7"))
	require.NoError(t, os.Setenv(experiment.EnvSegmentSize, "big"))
	defer func() {
		for _, name := range []string{experiment.EnvRoundTimeout, experiment.EnvFixedWindow, experiment.EnvSegmentSize} {
			require.NoError(t, os.Unsetenv(name))
		}
	}()

	conf := experiment.DefaultConfig()
	conf.ApplyEnv()
	assert.Equal(t, arq.Duration(75*time.Millisecond), conf.ARQ.RoundTimeout)
	assert.Equal(t, 7, conf.Experiment.FixedWindow)
	assert.Equal(t, arq.DefaultSegmentSize, conf.ARQ.SegmentSize)
	assert.Equal(t, arq.DefaultConfig().Linger, conf.ARQ.Linger)
}
