package stream

// outboundQueue buffers frames that cannot be sent because the transport is
// down. FIFO, no de-duplication: frames drain in enqueue order exactly once
// the transport becomes available.
type outboundQueue struct {
	frames [][]byte
}

func newOutboundQueue() *outboundQueue {
	return &outboundQueue{}
}

// push appends a frame.
func (q *outboundQueue) push(frame []byte) {
	q.frames = append(q.frames, frame)
}

// pushFront re-queues a frame that failed mid-flush, preserving order.
func (q *outboundQueue) pushFront(frame []byte) {
	q.frames = append([][]byte{frame}, q.frames...)
}

// pop removes and returns the oldest frame.
func (q *outboundQueue) pop() ([]byte, bool) {
	if len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	q.frames = q.frames[1:]
	return frame, true
}

func (q *outboundQueue) len() int {
	return len(q.frames)
}
