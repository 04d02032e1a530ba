package mqtt

import "testing"

func msg(i int) bufferedMsg {
	return bufferedMsg{topic: Topic, payload: []byte{byte(i)}}
}

func payloads(msgs []bufferedMsg) []byte {
	var out []byte
	for _, m := range msgs {
		out = append(out, m.payload[0])
	}
	return out
}

func TestRingBufferDrainEmpty(t *testing.T) {
	rb := newRingBuffer(4)
	if got := rb.drainAll(); got != nil {
		t.Errorf("drainAll() on empty buffer = %v, want nil", got)
	}
}

func TestRingBufferFIFO(t *testing.T) {
	rb := newRingBuffer(4)
	for i := 0; i < 3; i++ {
		if rb.push(msg(i)) {
			t.Fatalf("push(%d) reported a drop below capacity", i)
		}
	}
	if rb.len() != 3 {
		t.Fatalf("len() = %d, want 3", rb.len())
	}

	got := payloads(rb.drainAll())
	if string(got) != string([]byte{0, 1, 2}) {
		t.Errorf("drained %v, want [0 1 2]", got)
	}
	if rb.len() != 0 {
		t.Errorf("len() after drain = %d, want 0", rb.len())
	}
	if again := rb.drainAll(); again != nil {
		t.Errorf("second drain = %v, want nil", again)
	}
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	rb := newRingBuffer(3)
	drops := 0
	for i := 0; i < 7; i++ {
		if rb.push(msg(i)) {
			drops++
		}
	}
	if drops != 4 || rb.dropped != 4 {
		t.Errorf("drops = %d, dropped = %d, want 4", drops, rb.dropped)
	}

	got := payloads(rb.drainAll())
	if string(got) != string([]byte{4, 5, 6}) {
		t.Errorf("drained %v, want [4 5 6]", got)
	}
	if rb.dropped != 0 {
		t.Errorf("dropped after drain = %d, want 0", rb.dropped)
	}
}

func TestRingBufferReuseAfterDrain(t *testing.T) {
	rb := newRingBuffer(2)
	rb.push(msg(1))
	rb.push(msg(2))
	rb.push(msg(3))
	rb.drainAll()

	rb.push(msg(9))
	got := payloads(rb.drainAll())
	if string(got) != string([]byte{9}) {
		t.Errorf("drained %v, want [9]", got)
	}
}

func TestRingBufferZeroCapacity(t *testing.T) {
	rb := newRingBuffer(0)
	if !rb.push(msg(1)) {
		t.Error("push into zero-capacity buffer should report a drop")
	}
	if got := rb.drainAll(); got != nil {
		t.Errorf("drainAll() = %v, want nil", got)
	}
}

func TestRingBufferKeepsFields(t *testing.T) {
	rb := newRingBuffer(2)
	in := bufferedMsg{topic: TopicSystem, payload: []byte(`{"x":1}`), qos: 1, retained: true}
	rb.push(in)

	out := rb.drainAll()
	if len(out) != 1 {
		t.Fatalf("drained %d messages, want 1", len(out))
	}
	got := out[0]
	if got.topic != in.topic || string(got.payload) != string(in.payload) || got.qos != in.qos || got.retained != in.retained {
		t.Errorf("drained %+v, want %+v", got, in)
	}
}
