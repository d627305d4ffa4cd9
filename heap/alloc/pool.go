package alloc

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/joshuapare/blockmem/internal/buf"
	"github.com/joshuapare/blockmem/internal/format"
	"github.com/joshuapare/blockmem/internal/sysmem"
)

// SmallPool is a fixed array of equally sized slots for one size class.
//
// A ring cursor walks the slots to find the next free one. When a full walk
// finds nothing the pool reports exhaustion and stays exhausted until a
// slot is freed. The pool never grows.
type SmallPool struct {
	slotSize  int
	slots     int
	block     *sysmem.Block // nil when slots == 0
	base      uintptr
	allocated []bool
	cursor    int
	haveFree  bool
	live      int
	log       *zap.Logger
}

// newSmallPool builds a pool of budget/slotSize slots.
// A budget smaller than one slot yields a pool that never has free slots.
func newSmallPool(slotSize, budget int, log *zap.Logger) (*SmallPool, error) {
	p := &SmallPool{slotSize: slotSize, log: log}
	if budget < slotSize {
		return p, nil
	}

	slots := budget / slotSize
	size, ok := buf.MulOverflowSafe(slots, slotSize)
	if !ok {
		return nil, errors.Wrapf(ErrBadConfig, "pool budget %d", budget)
	}
	block, err := newBlock(size, format.PoolAlignment)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "pool %d", slotSize), ErrOutOfMemory)
	}

	p.slots = slots
	p.block = block
	p.base = block.Addr()
	p.allocated = make([]bool, slots)
	p.haveFree = true
	return p, nil
}

// HaveFreeBlocks reports whether the last scan found a free slot.
func (p *SmallPool) HaveFreeBlocks() bool { return p.haveFree }

// Allocate takes the next free slot at or after the cursor.
func (p *SmallPool) Allocate() (Ptr, bool) {
	if p.slots == 0 {
		return 0, false
	}

	start := p.cursor
	for p.allocated[p.cursor] {
		p.cursor = p.advance(p.cursor)
		if p.cursor == start {
			p.haveFree = false
			p.log.Warn("small memory block filled", zap.Int("slot_size", p.slotSize), zap.Int("slots", p.slots))
			return 0, false
		}
	}

	idx := p.cursor
	p.allocated[idx] = true
	p.live++
	p.cursor = p.advance(idx)
	return p.slotPtr(idx), true
}

// Free returns the slot at ptr. ptr must be a slot start of this pool.
func (p *SmallPool) Free(ptr Ptr) error {
	idx, ok := p.index(ptr)
	if !ok {
		return errors.Wrapf(ErrNotOwned, "pool %d", p.slotSize)
	}
	if !p.allocated[idx] {
		return errors.Wrapf(ErrDoubleFree, "pool %d slot %d", p.slotSize, idx)
	}

	p.allocated[idx] = false
	p.live--
	if !p.haveFree {
		p.cursor = idx
	}
	p.haveFree = true
	return nil
}

// ContainsPointer is a cheap address-range test.
func (p *SmallPool) ContainsPointer(ptr Ptr) bool {
	return p.slots > 0 && buf.InRange(uintptr(ptr), p.base, p.end())
}

// owns reports whether ptr is an allocated slot start.
func (p *SmallPool) owns(ptr Ptr) bool {
	idx, ok := p.index(ptr)
	return ok && p.allocated[idx]
}

func (p *SmallPool) index(ptr Ptr) (int, bool) {
	if p.slots == 0 {
		return 0, false
	}
	return buf.Index(uintptr(ptr), p.base, p.slotSize, p.slots)
}

func (p *SmallPool) advance(i int) int {
	i++
	if i == p.slots {
		return 0
	}
	return i
}

func (p *SmallPool) slotPtr(i int) Ptr { return Ptr(p.base + uintptr(i*p.slotSize)) }

func (p *SmallPool) end() uintptr { return p.base + uintptr(p.slots*p.slotSize) }

// SlotSize returns the size class of the pool.
func (p *SmallPool) SlotSize() int { return p.slotSize }

// Slots returns the fixed slot count.
func (p *SmallPool) Slots() int { return p.slots }

// Allocated returns the number of slots in use.
func (p *SmallPool) Allocated() int { return p.live }

// Cursor returns the ring cursor position.
func (p *SmallPool) Cursor() int { return p.cursor }

// leaks lists the slots still allocated.
func (p *SmallPool) leaks(src Source) []Leak {
	var out []Leak
	for i, used := range p.allocated {
		if used {
			out = append(out, Leak{Source: src, Addr: p.slotPtr(i), Offset: i, Size: p.slotSize})
		}
	}
	return out
}

// release returns the slot memory to the system.
func (p *SmallPool) release() error {
	p.allocated = nil
	p.haveFree = false
	if p.block == nil {
		return nil
	}
	block := p.block
	p.block, p.slots = nil, 0
	return block.Release()
}
