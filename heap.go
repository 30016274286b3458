// heap.go — the byte-addressable heap of spec.md §4.3, grounded on the
// original implementation's memory/heap.rs (same block shape: raw byte
// buffer + per-byte init bitmap + lifecycle state), generalised from a
// single global allocator into a value this engine's Heap owns outright so
// snapshotting can clone it wholesale.
package crustty

// HeapAddressStart is the base of the heap address region. Kept far above
// StackAddressStart so a raw address can be classified as stack or heap by
// value alone (spec.md §3 invariant, §6 "the two must be disjoint").
const HeapAddressStart uint64 = 0x1000_0000

// BlockState is a HeapBlock's lifecycle state (spec.md §3).
type BlockState int

const (
	BlockLive BlockState = iota
	BlockFreed
)

// HeapBlock is one allocation, live or tombstoned.
type HeapBlock struct {
	Base    uint64
	Len     int
	Data    []byte
	InitMap []bool
	State   BlockState
	FreedAt int // step index the block was freed at; meaningful only if State == BlockFreed

	// ElementType is the allocation's element-type label: malloc always
	// records void (a surrounding cast is not inspected), string-literal
	// blocks record char. Display-only, never trusted for semantics
	// (spec.md §3).
	ElementType Type
}

// Heap is the address-keyed map of allocations. Freed blocks stay as
// tombstones for the lifetime of the program so use-after-free is always
// reported precisely rather than degrading to InvalidMemoryAccess.
type Heap struct {
	Blocks   map[uint64]*HeapBlock
	nextAddr uint64
}

func NewHeap() *Heap {
	return &Heap{Blocks: make(map[uint64]*HeapBlock), nextAddr: HeapAddressStart}
}

// Alloc reserves nBytes at a fresh, monotonically increasing base address.
// Coalescing is unnecessary: blocks are never reclaimed during the
// program's lifetime (spec.md §3).
func (h *Heap) Alloc(nBytes int, elementTypeHint Type) uint64 {
	addr := h.nextAddr
	h.Blocks[addr] = &HeapBlock{
		Base:        addr,
		Len:         nBytes,
		Data:        make([]byte, nBytes),
		InitMap:     make([]bool, nBytes),
		State:       BlockLive,
		ElementType: elementTypeHint,
	}
	if nBytes == 0 {
		nBytes = 1 // never reuse an address even for a zero-length allocation
	}
	h.nextAddr += uint64(nBytes)
	return addr
}

// Free transitions the block at address to Freed. DoubleFree if it is
// already a tombstone, InvalidFree if no block begins there.
func (h *Heap) Free(address uint64, step int) error {
	b, ok := h.Blocks[address]
	if !ok {
		return &RuntimeError{Kind: ErrInvalidFree, Address: address}
	}
	if b.State == BlockFreed {
		return &RuntimeError{Kind: ErrDoubleFree, Address: address}
	}
	b.State = BlockFreed
	b.FreedAt = step
	return nil
}

// findBlock locates the block owning addr, if any.
func (h *Heap) findBlock(addr uint64) *HeapBlock {
	for _, b := range h.Blocks {
		if addr >= b.Base && addr < b.Base+uint64(b.Len) {
			return b
		}
		if b.Len == 0 && addr == b.Base {
			return b
		}
	}
	return nil
}

// Read returns n bytes starting at addr. Errors, in priority order: no
// owning block (InvalidMemoryAccess), block is a tombstone (UseAfterFree),
// range crosses the block end (BufferOverrun), any byte uninitialised
// (UninitialisedRead).
func (h *Heap) Read(addr uint64, n int) ([]byte, error) {
	b := h.findBlock(addr)
	if b == nil {
		return nil, &RuntimeError{Kind: ErrInvalidMemoryAccess, Address: addr}
	}
	if b.State == BlockFreed {
		return nil, &RuntimeError{Kind: ErrUseAfterFree, Address: addr}
	}
	off := int(addr - b.Base)
	if off+n > b.Len {
		return nil, &RuntimeError{Kind: ErrBufferOverrun, Address: addr, BlockBase: b.Base, BlockLen: b.Len}
	}
	for i := off; i < off+n; i++ {
		if !b.InitMap[i] {
			return nil, &RuntimeError{Kind: ErrUninitialisedRead, Address: addr}
		}
	}
	out := make([]byte, n)
	copy(out, b.Data[off:off+n])
	return out, nil
}

// Write stores bytes starting at addr and marks the corresponding init bits.
// Same error priority as Read, minus the uninitialised check.
func (h *Heap) Write(addr uint64, data []byte) error {
	b := h.findBlock(addr)
	if b == nil {
		return &RuntimeError{Kind: ErrInvalidMemoryAccess, Address: addr}
	}
	if b.State == BlockFreed {
		return &RuntimeError{Kind: ErrUseAfterFree, Address: addr}
	}
	off := int(addr - b.Base)
	if off+len(data) > b.Len {
		return &RuntimeError{Kind: ErrBufferOverrun, Address: addr, BlockBase: b.Base, BlockLen: b.Len}
	}
	copy(b.Data[off:off+len(data)], data)
	for i := off; i < off+len(data); i++ {
		b.InitMap[i] = true
	}
	return nil
}

// BlockContaining exposes the owning block for a raw address, for read-only
// inspection of the heap. The engine's pointer arithmetic (PtrAdd, PtrDiff)
// does not consult it.
func (h *Heap) BlockContaining(addr uint64) *HeapBlock {
	return h.findBlock(addr)
}

// Clone returns a deep, independent copy for the snapshot store.
func (h *Heap) Clone() *Heap {
	c := &Heap{Blocks: make(map[uint64]*HeapBlock, len(h.Blocks)), nextAddr: h.nextAddr}
	for addr, b := range h.Blocks {
		nb := &HeapBlock{
			Base: b.Base, Len: b.Len, State: b.State, FreedAt: b.FreedAt, ElementType: b.ElementType,
			Data:    append([]byte(nil), b.Data...),
			InitMap: append([]bool(nil), b.InitMap...),
		}
		c.Blocks[addr] = nb
	}
	return c
}

// LiveBlockCount returns the number of blocks whose state is Live, used by
// the fibonacci-with-memoisation scenario's "final heap live-block count"
// assertion (spec.md §8, S1).
func (h *Heap) LiveBlockCount() int {
	n := 0
	for _, b := range h.Blocks {
		if b.State == BlockLive {
			n++
		}
	}
	return n
}
