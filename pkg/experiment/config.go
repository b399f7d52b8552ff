package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/denisstrizhkin/network-labs/internal/retry"
	"github.com/denisstrizhkin/network-labs/pkg/arq"
	"github.com/denisstrizhkin/network-labs/pkg/util/env"
	"github.com/denisstrizhkin/network-labs/pkg/util/pathutil"
)

// Sweep defaults.
const (
	DefaultMessageUnit   = "A"
	DefaultMessageRepeat = 1000
	DefaultFixedWindow   = 10
	DefaultFixedLoss     = 0.3
	DefaultRetries       = 2
)

// SweepConfig configures the two efficiency sweeps.
type SweepConfig struct {
	Message       string    `json:"message"`
	MessageRepeat int       `json:"message_repeat"`
	LossRates     []float64 `json:"loss_rates"`
	WindowSizes   []int     `json:"window_sizes"`
	FixedWindow   int       `json:"fixed_window"`
	FixedLoss     float64   `json:"fixed_loss"`
	Retries       int       `json:"retries"`
	Seed          *int64    `json:"seed,omitempty"`
}

// StoreConfig selects the record store.
type StoreConfig struct {
	Type     string `json:"type"`
	Location string `json:"location"`
}

// Config is the arq-sim configuration file.
type Config struct {
	ARQ        arq.Config  `json:"arq"`
	Experiment SweepConfig `json:"experiment"`
	Store      StoreConfig `json:"store"`

	LogLevel    string `json:"log_level"`
	MetricsAddr string `json:"metrics_addr,omitempty"`
}

// DefaultConfig returns the configuration of the reference experiment.
func DefaultConfig() *Config {
	return &Config{
		ARQ: arq.DefaultConfig(),
		Experiment: SweepConfig{
			Message:       DefaultMessageUnit,
			MessageRepeat: DefaultMessageRepeat,
			LossRates:     []float64{0.0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9},
			WindowSizes:   []int{5, 10, 20},
			FixedWindow:   DefaultFixedWindow,
			FixedLoss:     DefaultFixedLoss,
			Retries:       DefaultRetries,
		},
		Store: StoreConfig{
			Type: StoreMemory,
		},
		LogLevel: "info",
	}
}

// ReadConfig decodes a Config from a JSON file. Absent fields keep their
// default values. An empty path yields the defaults.
func ReadConfig(path string) (*Config, error) {
	conf := DefaultConfig()
	if path == "" {
		return conf, nil
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open config")
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.WithError(err).Warn("Failed to close config file")
		}
	}()

	if err := json.NewDecoder(f).Decode(conf); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}
	return conf, conf.Validate()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.ARQ.Validate(); err != nil {
		return err
	}
	e := c.Experiment
	if e.MessageRepeat < 1 {
		return fmt.Errorf("message_repeat must be positive, got %d", e.MessageRepeat)
	}
	if e.FixedWindow < 1 {
		return errors.Wrapf(arq.ErrInvalidWindow, "fixed_window %d", e.FixedWindow)
	}
	for _, w := range e.WindowSizes {
		if w < 1 {
			return errors.Wrapf(arq.ErrInvalidWindow, "window_sizes entry %d", w)
		}
	}
	for _, l := range append([]float64{e.FixedLoss}, e.LossRates...) {
		if l < 0 || l > 1 {
			return errors.Wrapf(arq.ErrInvalidLoss, "loss rate %v", l)
		}
	}
	switch c.Store.Type {
	case StoreMemory, "":
	case StoreFile, StoreBoltDB:
		if c.Store.Location == "" {
			return fmt.Errorf("store %s needs a location", c.Store.Type)
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	return nil
}

// Environment variables overriding ARQ timing.
const (
	EnvSegmentSize     = "ARQ_SEGMENT_SIZE"
	EnvRoundTimeout    = "ARQ_ROUND_TIMEOUT"
	EnvTransferTimeout = "ARQ_TRANSFER_TIMEOUT"
	EnvPollInterval    = "ARQ_POLL_INTERVAL"
	EnvLinger          = "ARQ_LINGER"
	EnvFixedLoss       = "ARQ_FIXED_LOSS"
	EnvFixedWindow     = "ARQ_FIXED_WINDOW"
)

// ApplyEnv overrides fields from the environment. Unparsable values are ignored.
func (c *Config) ApplyEnv() {
	a := &c.ARQ
	a.SegmentSize = env.Int(EnvSegmentSize, a.SegmentSize)
	a.RoundTimeout = arq.Duration(env.Duration(EnvRoundTimeout, a.RoundTimeout.Std()))
	a.TransferTimeout = arq.Duration(env.Duration(EnvTransferTimeout, a.TransferTimeout.Std()))
	a.PollInterval = arq.Duration(env.Duration(EnvPollInterval, a.PollInterval.Std()))
	a.Linger = arq.Duration(env.Duration(EnvLinger, a.Linger.Std()))
	c.Experiment.FixedLoss = env.Float64(EnvFixedLoss, c.Experiment.FixedLoss)
	c.Experiment.FixedWindow = env.Int(EnvFixedWindow, c.Experiment.FixedWindow)
}

// Message returns the swept message.
func (c *Config) Message() string {
	return strings.Repeat(c.Experiment.Message, c.Experiment.MessageRepeat)
}

// ResultStore returns the configured record store.
func (c *Config) ResultStore() (Store, error) {
	switch c.Store.Type {
	case StoreFile:
		dir, err := pathutil.EnsureDir(c.Store.Location)
		if err != nil {
			return nil, err
		}
		return FileStore(dir)
	case StoreBoltDB:
		path, err := pathutil.Expand(c.Store.Location)
		if err != nil {
			return nil, err
		}
		return BoltDBStore(path)
	}

	return InMemoryStore(), nil
}

// Retrier returns the transfer Retrier.
func (c *Config) Retrier() *retry.Retrier {
	return NewRetrier(c.Experiment.Retries)
}
