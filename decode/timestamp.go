package decode

import (
	"strconv"
	"time"
)

// FileTime is a raw Windows FILETIME: 100ns intervals since 1601-01-01
// UTC, stored unconverted the way spec.md §4.3 requires ("the header's
// 100ns FILETIME is stored raw").
type FileTime int64

// filetimeToUnixDelta100ns is the number of 100ns intervals between the
// FILETIME epoch (1601-01-01) and the Unix epoch (1970-01-01), following
// original_source/src/utils/mod.rs's explicit epoch-delta computation.
const filetimeToUnixDelta100ns = 116444736000000000

// Time converts ft to wall-clock time.
func (ft FileTime) Time() time.Time {
	unix100ns := int64(ft) - filetimeToUnixDelta100ns
	sec := unix100ns / 10000000
	nsec := (unix100ns % 10000000) * 100
	return time.Unix(sec, nsec).UTC()
}

// String renders ft as "<rfc3339>(<raw>)", matching the row-model
// datetime column's "human-readable with original 100ns suffix" contract
// from spec.md §6 and original_source/src/utils/mod.rs's
// to_datetime_detail.
func (ft FileTime) String() string {
	return ft.Time().Format(time.RFC3339Nano) + "(" + strconv.FormatInt(int64(ft), 10) + ")"
}
