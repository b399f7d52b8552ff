package arq

import "github.com/pkg/errors"

var (
	// ErrTransferTimeout is returned by Send when the transfer does not complete within Config.TransferTimeout.
	ErrTransferTimeout = errors.New("transfer timeout")

	// ErrReadTimeout is returned by Read when the message is incomplete after Config.TransferTimeout.
	ErrReadTimeout = errors.New("read timeout")

	// ErrProtocolViolation is returned when a segment's position contradicts its sequence number.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrEncoding is returned when the assembled message is not valid UTF-8.
	ErrEncoding = errors.New("message is not valid utf-8")

	// ErrChannelClosed is returned when the peer end of a channel is gone.
	ErrChannelClosed = errors.New("channel closed")

	// ErrInvalidWindow is returned by Send for a window size below 1.
	ErrInvalidWindow = errors.New("window size must be at least 1")

	// ErrInvalidLoss is returned for a link loss probability outside [0, 1].
	ErrInvalidLoss = errors.New("loss probability must be in [0, 1]")
)
