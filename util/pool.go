package util

import "sync"

// DefaultBufSize is the chunk size used when draining a subprocess's
// output stream (4 KiB, comfortably above one OpenVPN log burst).
const DefaultBufSize = 4 * 1024

// BufPool provides reusable read buffers for subprocess output loops.
// One tunnel session holds a buffer for its whole lifetime, and a pass
// creates one session per candidate, so buffers are recycled across
// candidates instead of reallocated.
var BufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, DefaultBufSize)
		return &buf
	},
}

// GetBuf retrieves a buffer from the pool.  Callers must return it
// with [PutBuf] when finished.
func GetBuf() *[]byte {
	return BufPool.Get().(*[]byte)
}

// PutBuf returns a buffer to the pool for reuse.
func PutBuf(buf *[]byte) {
	if buf == nil {
		return
	}
	BufPool.Put(buf)
}
