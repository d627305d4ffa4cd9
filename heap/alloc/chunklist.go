package alloc

import (
	"github.com/google/btree"
)

const chunkIndexDegree = 8

// chunkList keeps chunks in creation order for allocation scans and in an
// address-ordered btree so release and validate find the owner of a
// pointer without walking every chunk. Chunks never overlap.
type chunkList struct {
	ordered []*Chunk
	byAddr  *btree.BTreeG[*Chunk]
}

func newChunkList() chunkList {
	return chunkList{
		byAddr: btree.NewG(chunkIndexDegree, func(a, b *Chunk) bool {
			return a.dataStart < b.dataStart
		}),
	}
}

func (l *chunkList) add(c *Chunk) {
	l.ordered = append(l.ordered, c)
	l.byAddr.ReplaceOrInsert(c)
}

// find returns the chunk whose data area contains p.
func (l *chunkList) find(p Ptr) *Chunk {
	var owner *Chunk
	l.byAddr.DescendLessOrEqual(&Chunk{dataStart: uintptr(p)}, func(c *Chunk) bool {
		if uintptr(p) < c.dataEnd {
			owner = c
		}
		return false
	})
	return owner
}

// removeIf drops every chunk for which drop returns true, keeping order.
func (l *chunkList) removeIf(drop func(*Chunk) bool) []*Chunk {
	var removed []*Chunk
	kept := l.ordered[:0]
	for _, c := range l.ordered {
		if drop(c) {
			l.byAddr.Delete(c)
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}
	clear(l.ordered[len(kept):])
	l.ordered = kept
	return removed
}

func (l *chunkList) len() int { return len(l.ordered) }

func (l *chunkList) at(i int) *Chunk { return l.ordered[i] }

func (l *chunkList) all() []*Chunk { return l.ordered }

func (l *chunkList) reset() {
	l.ordered = nil
	l.byAddr.Clear(false)
}
