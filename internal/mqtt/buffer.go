package mqtt

import "log"

// bufferedMsg is a serialized message awaiting a broker connection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer keeps the most recent messages up to capacity, oldest first.
// Callers synchronize access.
type ringBuffer struct {
	items   []bufferedMsg
	next    int // slot for the next push
	size    int
	dropped int // messages overwritten since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{items: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	capacity := len(r.items)
	r.items[r.next] = msg
	r.next = (r.next + 1) % capacity
	if r.size < capacity {
		r.size++
		return
	}
	if r.dropped == 0 {
		log.Printf("mqtt: buffer full (%d messages), dropping oldest", capacity)
	}
	r.dropped++
}

// drainAll empties the buffer and returns its contents, or nil when empty.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.size == 0 {
		return nil
	}
	capacity := len(r.items)
	first := (r.next - r.size + capacity) % capacity
	out := make([]bufferedMsg, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.items[(first+i)%capacity])
	}
	if r.dropped > 0 {
		log.Printf("mqtt: %d buffered messages were dropped", r.dropped)
	}
	r.next, r.size, r.dropped = 0, 0, 0
	return out
}

func (r *ringBuffer) len() int {
	return r.size
}
