package timeline

import (
	"errors"
	"fmt"
)

// ErrInvalidTimeline is returned by Validate.
var ErrInvalidTimeline = errors.New("invalid timeline")

// Validate checks the producer contract: HH:MM wake and bedtime targets,
// named anchors with HH:MM times, and confidences within [0,1].
// Normalize does not require it; callers use it to reject bad upstream output.
func Validate(tl *Timeline) error {
	if tl == nil {
		return fmt.Errorf("%w: missing timeline", ErrInvalidTimeline)
	}
	if _, ok := ParseHHMM(tl.WakeTime); !ok {
		return fmt.Errorf("%w: wake_time %q is not HH:MM", ErrInvalidTimeline, tl.WakeTime)
	}
	if _, ok := ParseHHMM(tl.BedtimeTarget); !ok {
		return fmt.Errorf("%w: bedtime_target %q is not HH:MM", ErrInvalidTimeline, tl.BedtimeTarget)
	}
	if tl.Anchors == nil {
		return fmt.Errorf("%w: anchors missing", ErrInvalidTimeline)
	}
	for i, a := range tl.Anchors {
		if a.Name == "" {
			return fmt.Errorf("%w: anchor %d has no name", ErrInvalidTimeline, i)
		}
		if _, ok := ParseHHMM(a.Time); !ok {
			return fmt.Errorf("%w: anchor %q time %q is not HH:MM", ErrInvalidTimeline, a.Name, a.Time)
		}
		if a.Confidence != nil && (*a.Confidence < 0 || *a.Confidence > 1) {
			return fmt.Errorf("%w: anchor %q confidence %v outside [0,1]", ErrInvalidTimeline, a.Name, *a.Confidence)
		}
	}
	return nil
}
