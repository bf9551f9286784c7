package engine

// DurationVerdict classifies a video's length against the configured bounds.
type DurationVerdict int

const (
	DurationOK DurationVerdict = iota
	DurationTooShort
	DurationTooLong
	DurationUnknown
)

func (v DurationVerdict) String() string {
	switch v {
	case DurationOK:
		return "ok"
	case DurationTooShort:
		return "too_short"
	case DurationTooLong:
		return "too_long"
	default:
		return "unknown"
	}
}

// ClassifyDuration decides whether a video of the given length should be
// processed. known=false means the duration could not be determined.
// Bounds are in minutes; a video is too short when strictly under the minimum
// and too long when strictly over the maximum.
func ClassifyDuration(seconds int, known bool, minMinutes, maxMinutes int) DurationVerdict {
	switch {
	case !known:
		return DurationUnknown
	case seconds < minMinutes*60:
		return DurationTooShort
	case seconds > maxMinutes*60:
		return DurationTooLong
	default:
		return DurationOK
	}
}
