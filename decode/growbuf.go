package decode

// growAndRetry is the retry-on-insufficient-buffer idiom shared by every
// TDH call that reports its required size back through an in/out byte
// count: TdhGetEventInformation, TdhFormatProperty, TdhGetEventMapInformation.
// call is invoked with a buffer of the given size; it returns the number
// of bytes actually needed (equal to len(buf) on success) and whether the
// buffer was big enough. growAndRetry grows the buffer to the reported
// need (doubling it when the reported need is not larger than the current
// size) and retries until call succeeds, the next size would exceed
// maxBufferBytes, or 32 attempts have been made, a bounded retry in the
// spirit of bufferedSectionReader.fill()'s iteration limit in the teacher.
func growAndRetry(initial int, call func(buf []byte) (need int, ok bool)) ([]byte, bool) {
	const maxBufferBytes = 1 << 20 // 1 MiB, generous upper bound for a single property or event's schema blob
	size := initial
	if size <= 0 {
		size = 1024
	}
	for tries := 0; tries < 32; tries++ {
		buf := make([]byte, size)
		need, ok := call(buf)
		if ok {
			return buf[:need], true
		}
		if need <= size {
			// Reported insufficient but didn't grow; avoid infinite loop.
			need = size * 2
		}
		if need > maxBufferBytes {
			return nil, false
		}
		size = need
	}
	return nil, false
}
