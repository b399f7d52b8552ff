// Package arq holds the types shared by the Go-Back-N and Selective-Repeat
// implementations: segments, configuration, error kinds and sender counters.
package arq

import (
	"fmt"
	"strings"
)

// Protocol names an ARQ variant.
type Protocol string

const (
	// GoBackN is the cumulative-acknowledgement variant.
	GoBackN Protocol = "gbn"
	// SelectiveRepeat is the per-segment acknowledgement variant.
	SelectiveRepeat Protocol = "sr"
)

// Protocols lists every supported variant.
func Protocols() []Protocol {
	return []Protocol{GoBackN, SelectiveRepeat}
}

// ParseProtocol parses a protocol name.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(s)); p {
	case GoBackN, SelectiveRepeat:
		return p, nil
	case "gobackn", "go-back-n":
		return GoBackN, nil
	case "selectiverepeat", "selective-repeat":
		return SelectiveRepeat, nil
	default:
		return "", fmt.Errorf("unknown protocol %q", s)
	}
}

// String implements fmt.Stringer and pflag.Value.
func (p Protocol) String() string { return string(p) }

// Set implements pflag.Value.
func (p *Protocol) Set(s string) error {
	v, err := ParseProtocol(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Type implements pflag.Value.
func (p Protocol) Type() string { return "arq.Protocol" }

// Sender segments a message and delivers it reliably.
type Sender interface {
	Send(message string, windowSize int) error
	EfficiencyCoefficient() float64
	Stats() Stats
	Base() SeqNum
}

// Receiver reassembles a message and acknowledges its segments.
type Receiver interface {
	Read() (string, error)
}
