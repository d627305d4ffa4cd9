package alloc

import (
	"github.com/cockroachdb/errors"
)

// recordState tags a record as free or allocated.
type recordState uint32

const (
	stateFree recordState = iota
	stateAllocated
)

func (s recordState) String() string {
	if s == stateAllocated {
		return "allocated"
	}
	return "free"
}

// record describes one span of a chunk's data area. Records live in the
// chunk's own header area and are kept ordered by begin, so neighbours in
// the array are neighbours in memory.
type record struct {
	state  recordState
	begin  uint32 // offset from the chunk's data start
	length uint32
	_      uint32
}

func (r *record) free() bool { return r.state == stateFree }

func (r *record) end() uint32 { return r.begin + r.length }

// recordList is a fixed-capacity sequence with O(n) insert and remove.
// Chunks stay small in record count, so shifting the tail is acceptable.
type recordList []record

// insertAt inserts rec at index i, shifting the tail up by one.
func (l *recordList) insertAt(i int, rec record) {
	s := *l
	if len(s) == cap(s) {
		panic(errors.AssertionFailedf("record array full: %d records", len(s)))
	}
	s = s[:len(s)+1]
	copy(s[i+1:], s[i:])
	s[i] = rec
	*l = s
}

// removeAt removes the record at index i, shifting the tail down by one.
func (l *recordList) removeAt(i int) {
	s := *l
	copy(s[i:], s[i+1:])
	s[len(s)-1] = record{}
	*l = s[:len(s)-1]
}

// find returns the index of the record starting at begin.
func (l recordList) find(begin uint32) int {
	for i := range l {
		if l[i].begin == begin {
			return i
		}
	}
	return -1
}
