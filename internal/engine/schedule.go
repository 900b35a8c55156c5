package engine

import "time"

type Timing int

const (
	// TimingImmediate: no publication date set; stamp to now and publish.
	TimingImmediate Timing = iota
	// TimingFuture: date is strictly after now; schedule instead.
	TimingFuture
	// TimingBackdated: date at or before now; publish without restamping.
	TimingBackdated
)

func (t Timing) String() string {
	switch t {
	case TimingFuture:
		return "future"
	case TimingBackdated:
		return "backdated"
	default:
		return "immediate"
	}
}

// dateUnset treats both the empty string and the legacy zero sentinel as
// no date.
func dateUnset(dateUTC string) bool {
	return dateUTC == "" || dateUTC == zeroDate
}

// DecideSchedule classifies an item's UTC publication date against now.
// Unparseable dates count as unset rather than blocking publication.
func DecideSchedule(dateUTC string, now time.Time) Timing {
	if dateUnset(dateUTC) {
		return TimingImmediate
	}
	t, err := time.ParseInLocation(mysqlLayout, dateUTC, time.UTC)
	if err != nil {
		return TimingImmediate
	}
	if t.After(now.UTC()) {
		return TimingFuture
	}
	return TimingBackdated
}
