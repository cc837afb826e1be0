package spectrum

import (
	"time"
)

// Frame is one processed power spectrum together with its acquisition
// metadata. Frames travel from the sample stream producer to the consumer
// pipeline; ownership of Power transfers with the frame and the producer
// never touches it again after emission.
type Frame struct {
	Seq       uint64    `json:"seq"`       // Monotonic frame counter for the session
	Timestamp time.Time `json:"timestamp"` // When the underlying block was read
	Power     []float64 `json:"power"`     // Power per bin in dB, zero frequency centred
}

// Bins returns the transform length of the frame.
func (f Frame) Bins() int {
	return len(f.Power)
}
