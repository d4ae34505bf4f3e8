package server

import "github.com/rvdbg/rvdbg/pkg/target"

// mpKey identifies a matchpoint. Overlapping but non-identical ranges are
// distinct entries; uniqueness is on the full triple.
type mpKey struct {
	typ  target.MpType
	addr uint64
	kind uint64 // length in bytes (instruction size for breakpoints)
}

// mpHash records the matchpoints currently planted, keyed by kind, address
// and length. For software breakpoints the value holds the instruction
// bytes that were overwritten, so the z packet can restore them. The
// registry never touches target memory itself.
type mpHash struct {
	m map[mpKey][]byte
}

func newMpHash() *mpHash {
	return &mpHash{m: make(map[mpKey][]byte)}
}

// insert records a matchpoint. Inserting a key that already exists is a
// no-op: the first saved instruction is the real one, a second Z packet for
// the same triple must not capture the trap we planted.
func (h *mpHash) insert(typ target.MpType, addr, kind uint64, instr []byte) {
	key := mpKey{typ: typ, addr: addr, kind: kind}
	if _, present := h.m[key]; present {
		return
	}
	saved := make([]byte, len(instr))
	copy(saved, instr)
	h.m[key] = saved
}

// remove deletes a matchpoint and returns the saved instruction bytes, or
// nil if the triple was never inserted.
func (h *mpHash) remove(typ target.MpType, addr, kind uint64) []byte {
	key := mpKey{typ: typ, addr: addr, kind: kind}
	instr, present := h.m[key]
	if !present {
		return nil
	}
	delete(h.m, key)
	return instr
}

// lookup returns the saved instruction bytes without removing the entry,
// nil if absent.
func (h *mpHash) lookup(typ target.MpType, addr, kind uint64) []byte {
	return h.m[mpKey{typ: typ, addr: addr, kind: kind}]
}

// clear drops every entry; used on target reset.
func (h *mpHash) clear() {
	h.m = make(map[mpKey][]byte)
}

func (h *mpHash) count() int {
	return len(h.m)
}
