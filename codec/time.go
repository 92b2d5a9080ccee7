package codec

import "time"

// microsToTime rebuilds a UTC time.Time from the microsecond-since-epoch
// encoding used by putTime, matching the precision actually carried on
// the wire (sub-microsecond precision is never present on encode).
func microsToTime(micros uint64) time.Time {
	return time.UnixMicro(int64(micros)).UTC()
}
