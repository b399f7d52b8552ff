package arq

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Defaults used by DefaultConfig.
const (
	DefaultSegmentSize     = 255
	DefaultRoundTimeout    = 200 * time.Millisecond
	DefaultTransferTimeout = 60 * time.Second
	DefaultPollInterval    = 10 * time.Millisecond
	DefaultLinger          = 2 * time.Second
)

// Config holds the timing and sizing parameters shared by both protocol variants.
type Config struct {
	SegmentSize int `json:"segment_size"`

	// RoundTimeout is how long the GBN sender waits for progress before going back
	// to base, and the SR per-segment retransmission timeout.
	RoundTimeout Duration `json:"round_timeout"`

	// TransferTimeout bounds a whole Send or Read call.
	TransferTimeout Duration `json:"transfer_timeout"`

	// PollInterval is how long the SR sender drains acks between transmissions.
	PollInterval Duration `json:"poll_interval"`

	// Linger is how long a receiver keeps re-acknowledging duplicates after the
	// last segment was delivered and the link went quiet.
	Linger Duration `json:"linger"`
}

// DefaultConfig returns the reference sizing of the simulator.
func DefaultConfig() Config {
	return Config{
		SegmentSize:     DefaultSegmentSize,
		RoundTimeout:    Duration(DefaultRoundTimeout),
		TransferTimeout: Duration(DefaultTransferTimeout),
		PollInterval:    Duration(DefaultPollInterval),
		Linger:          Duration(DefaultLinger),
	}
}

// Validate checks that c is usable.
func (c Config) Validate() error {
	switch {
	case c.SegmentSize < 1:
		return errors.New("segment_size must be positive")
	case c.RoundTimeout <= 0:
		return errors.New("round_timeout must be positive")
	case c.TransferTimeout <= 0:
		return errors.New("transfer_timeout must be positive")
	case c.PollInterval <= 0:
		return errors.New("poll_interval must be positive")
	case c.Linger < 0:
		return errors.New("linger must not be negative")
	}
	return nil
}

// Duration wraps around time.Duration to allow parsing from and to JSON
type Duration time.Duration

// MarshalJSON implements json marshaling
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements unmarshal from json
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return errors.New("invalid duration")
	}
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }
