package seenset

import (
	"github.com/gammazero/deque"
)

// SeenSet is a bounded dedup set which remembers insertion order.
// Trim evicts the oldest entries first, so the most recently seen keys survive.
// Not thread safe: owned by a single consumer
type SeenSet[K comparable] struct {
	m       map[K]uint64
	order   *deque.Deque[entry[K]]
	nextSeq uint64
}

// entry is current only while its sequence number matches the one in the map
type entry[K comparable] struct {
	key K
	seq uint64
}

func New[K comparable]() *SeenSet[K] {
	return &SeenSet[K]{
		m:     make(map[K]uint64),
		order: new(deque.Deque[entry[K]]),
	}
}

// Seen marks key as seen. Returns true if it was already seen before the call
func (s *SeenSet[K]) Seen(k K) bool {
	if _, already := s.m[k]; already {
		return true
	}
	s.nextSeq++
	s.m[k] = s.nextSeq
	s.order.PushBack(entry[K]{key: k, seq: s.nextSeq})
	return false
}

func (s *SeenSet[K]) Contains(k K) bool {
	_, ret := s.m[k]
	return ret
}

// Forget removes key. The stale entry in the order queue is skipped during trim
func (s *SeenSet[K]) Forget(k K) {
	delete(s.m, k)
}

func (s *SeenSet[K]) Len() int {
	return len(s.m)
}

func (s *SeenSet[K]) isCurrent(e entry[K]) bool {
	seq, ok := s.m[e.key]
	return ok && seq == e.seq
}

// Trim evicts oldest keys until at most keep remain. Returns number of evicted keys
func (s *SeenSet[K]) Trim(keep int) int {
	evicted := 0
	for len(s.m) > keep && s.order.Len() > 0 {
		e := s.order.PopFront()
		if s.isCurrent(e) {
			delete(s.m, e.key)
			evicted++
		}
	}
	if s.order.Len() > 2*len(s.m)+16 {
		s.compact()
	}
	return evicted
}

// compact drops stale order entries
func (s *SeenSet[K]) compact() {
	n := s.order.Len()
	for i := 0; i < n; i++ {
		e := s.order.PopFront()
		if s.isCurrent(e) {
			s.order.PushBack(e)
		}
	}
}
