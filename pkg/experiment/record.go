// Package experiment runs efficiency sweeps over loss rates and window sizes
// and persists one Record per transfer.
package experiment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/denisstrizhkin/network-labs/pkg/arq"
	"github.com/denisstrizhkin/network-labs/pkg/transfer"
)

// Record is the stored outcome of one transfer.
type Record struct {
	ID         uuid.UUID    `json:"id"`
	Protocol   arq.Protocol `json:"protocol"`
	WindowSize int          `json:"window_size"`
	Loss       float64      `json:"loss"`
	Total      int          `json:"total"`
	Sent       int          `json:"sent"`
	Acked      int          `json:"acked"`
	Retransmit int          `json:"retransmissions"`
	Efficiency float64      `json:"efficiency"`
	Duration   arq.Duration `json:"duration"`
	Attempts   int          `json:"attempts"`
	Err        string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// NewRecord builds a Record from a transfer result.
func NewRecord(res *transfer.Result) *Record {
	r := &Record{
		ID:         res.ID,
		Protocol:   res.Params.Protocol,
		WindowSize: res.Params.WindowSize,
		Loss:       res.Params.Loss,
		Total:      res.Stats.Total,
		Sent:       res.Stats.Sent,
		Acked:      res.Stats.Acked,
		Retransmit: res.Stats.Retransmissions(),
		Efficiency: res.Efficiency(),
		Duration:   arq.Duration(res.Duration),
		Attempts:   1,
		CreatedAt:  time.Now().UTC(),
	}
	if err := res.Err(); err != nil {
		r.Err = err.Error()
	}
	return r
}

// Failed reports whether the transfer ended with an error.
func (r *Record) Failed() bool { return r.Err != "" }

func (r *Record) String() string {
	s := fmt.Sprintf("%s %s w=%d loss=%.2f eff=%.4f sent=%d/%d in %s",
		r.ID, r.Protocol, r.WindowSize, r.Loss, r.Efficiency, r.Sent, r.Total, r.Duration)
	if r.Failed() {
		s += " error: " + r.Err
	}
	return s
}
