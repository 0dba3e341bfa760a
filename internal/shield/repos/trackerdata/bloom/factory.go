package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/rr-shield/internal/shield/repos/trackerdata"
)

// factory implements trackerdata.BloomFactory on top of a BloomSizer.
type factory struct {
	sizer trackerdata.BloomSizer
}

// NewFactory returns a BloomFactory that sizes filters with NewSizer.
func NewFactory() trackerdata.BloomFactory { return factory{sizer: NewSizer()} }

// NewFactoryWithSizer returns a BloomFactory using the given sizer.
func NewFactoryWithSizer(s trackerdata.BloomSizer) trackerdata.BloomFactory {
	return factory{sizer: s}
}

// New constructs a filter sized for the given capacity and target
// false-positive rate.
func (f factory) New(capacity uint64, fpRate float64) trackerdata.BloomFilter {
	m, k := f.sizer.Size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}
