package arq

import (
	"fmt"

	"github.com/pkg/errors"
)

// SeqNum is a segment sequence number. It is also the payload of an acknowledgement.
type SeqNum uint32

// Position tags a segment's place within its message.
type Position byte

const (
	// First marks the segment with sequence number 0.
	First Position = iota
	// Middle marks every segment between First and Last.
	Middle
	// Last marks the segment with the highest sequence number.
	Last
)

func (p Position) String() string {
	switch p {
	case First:
		return "first"
	case Middle:
		return "middle"
	case Last:
		return "last"
	default:
		return fmt.Sprintf("position(%d)", byte(p))
	}
}

// MinSegments is the smallest number of segments a message is split into,
// so that First and Last are always carried by distinct segments.
const MinSegments = 2

// Segment is a single data unit of a message.
type Segment struct {
	Seq      SeqNum
	Data     []byte
	Position Position
}

// Len returns the number of payload bytes used.
func (s Segment) Len() int { return len(s.Data) }

func (s Segment) String() string {
	return fmt.Sprintf("segment(%d, %s, %dB)", s.Seq, s.Position, len(s.Data))
}

// SegmentCount returns the number of segments a message of byteLen bytes is split into.
func SegmentCount(byteLen, size int) int {
	n := (byteLen + size - 1) / size
	if n < MinSegments {
		return MinSegments
	}
	return n
}

// PositionOf returns the position of seq in a message of total segments.
func PositionOf(seq SeqNum, total int) Position {
	switch {
	case seq == 0:
		return First
	case int(seq) == total-1:
		return Last
	default:
		return Middle
	}
}

// MakeSegment materializes segment seq of msg. Segments past the end of msg
// carry an empty payload.
func MakeSegment(msg []byte, seq SeqNum, total, size int) Segment {
	start := int(seq) * size
	end := start + size
	if end > len(msg) {
		end = len(msg)
	}

	var data []byte
	if start < end {
		data = msg[start:end:end]
	}

	return Segment{
		Seq:      seq,
		Data:     data,
		Position: PositionOf(seq, total),
	}
}

// Split materializes every segment of msg.
func Split(msg []byte, size int) []Segment {
	total := SegmentCount(len(msg), size)
	segs := make([]Segment, total)
	for i := range segs {
		segs[i] = MakeSegment(msg, SeqNum(i), total, size)
	}
	return segs
}

// CheckPosition reports a protocol violation when the First tag and the
// sequence number disagree.
func CheckPosition(seq SeqNum, p Position) error {
	if seq == 0 && p != First {
		return errors.Wrapf(ErrProtocolViolation, "first segment is tagged %s", p)
	}
	if seq != 0 && p == First {
		return errors.Wrapf(ErrProtocolViolation, "segment %d is tagged first", seq)
	}
	return nil
}
