package stream

import (
	"errors"
	"fmt"
)

// ErrFinalized reports a frame or end-of-stream signal observed after the
// session already finalized.
var ErrFinalized = errors.New("stream already finalized")

// FatalDecodeError reports a blendshape record whose value count does not
// match the target name list from the stream header. No keyframe can be
// built from such a record, the session aborts.
type FatalDecodeError struct {
	TimeCode float64
	Targets  int
	Values   int
}

func (e *FatalDecodeError) Error() string {
	return fmt.Sprintf("blendshape record at %.3fs carries %d values for %d targets", e.TimeCode, e.Values, e.Targets)
}
