package mqtt

// bufferedMsg is a serialized MQTT message held for replay.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer keeps the most recent messages published while the broker is
// unreachable. When full, the oldest message is overwritten. Not safe for
// concurrent use; RealPublisher guards it with its mutex.
type ringBuffer struct {
	msgs    []bufferedMsg
	next    int // slot the next push writes
	count   int
	dropped int // overwritten since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{msgs: make([]bufferedMsg, capacity)}
}

// push stores msg, reporting whether an older message was lost to make room.
func (r *ringBuffer) push(msg bufferedMsg) bool {
	size := len(r.msgs)
	if size == 0 {
		r.dropped++
		return true
	}

	full := r.count == size
	r.msgs[r.next] = msg
	r.next = (r.next + 1) % size
	if full {
		r.dropped++
	} else {
		r.count++
	}
	return full
}

// drainAll returns the held messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		r.dropped = 0
		return nil
	}

	size := len(r.msgs)
	first := (r.next - r.count + size) % size
	out := make([]bufferedMsg, 0, r.count)
	for i := 0; i < r.count; i++ {
		slot := (first + i) % size
		out = append(out, r.msgs[slot])
		r.msgs[slot] = bufferedMsg{}
	}

	r.next, r.count, r.dropped = 0, 0, 0
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
