package server

import (
	"bytes"
	"testing"

	"github.com/rvdbg/rvdbg/pkg/target"
)

func TestMpHashInsertRemove(t *testing.T) {
	h := newMpHash()
	instr := []byte{0x13, 0x00, 0x00, 0x00}

	h.insert(target.MpMemBreak, 0x1000, 4, instr)
	if got := h.lookup(target.MpMemBreak, 0x1000, 4); !bytes.Equal(got, instr) {
		t.Errorf("lookup = %x, want %x", got, instr)
	}

	got := h.remove(target.MpMemBreak, 0x1000, 4)
	if !bytes.Equal(got, instr) {
		t.Errorf("remove = %x, want %x", got, instr)
	}
	if h.lookup(target.MpMemBreak, 0x1000, 4) != nil {
		t.Errorf("entry survived removal")
	}
	if h.remove(target.MpMemBreak, 0x1000, 4) != nil {
		t.Errorf("second remove returned a value")
	}
}

func TestMpHashInsertIdempotent(t *testing.T) {
	h := newMpHash()
	orig := []byte{0x13, 0x00, 0x00, 0x00}
	trap := []byte{0x73, 0x00, 0x10, 0x00}

	h.insert(target.MpMemBreak, 0x1000, 4, orig)
	// a second insert for the same triple must not clobber the saved bytes
	h.insert(target.MpMemBreak, 0x1000, 4, trap)

	if got := h.lookup(target.MpMemBreak, 0x1000, 4); !bytes.Equal(got, orig) {
		t.Errorf("lookup after double insert = %x, want %x", got, orig)
	}
	if h.count() != 1 {
		t.Errorf("count = %d, want 1", h.count())
	}
}

func TestMpHashKeyDiscrimination(t *testing.T) {
	h := newMpHash()
	h.insert(target.MpMemBreak, 0x1000, 4, []byte{1})
	h.insert(target.MpMemBreak, 0x1000, 2, []byte{2})
	h.insert(target.MpHardBreak, 0x1000, 4, nil)
	h.insert(target.MpWriteWatch, 0x1000, 4, nil)

	if h.count() != 4 {
		t.Fatalf("count = %d, want 4 distinct keys", h.count())
	}
	if got := h.lookup(target.MpMemBreak, 0x1000, 2); !bytes.Equal(got, []byte{2}) {
		t.Errorf("kind is not part of the key")
	}
}

func TestMpHashSavedBytesAreCopied(t *testing.T) {
	h := newMpHash()
	buf := []byte{0x13, 0x00, 0x00, 0x00}
	h.insert(target.MpMemBreak, 0x2000, 4, buf)
	buf[0] = 0xff
	if got := h.lookup(target.MpMemBreak, 0x2000, 4); got[0] != 0x13 {
		t.Errorf("registry aliases the caller's buffer")
	}
}

func TestMpHashClear(t *testing.T) {
	h := newMpHash()
	h.insert(target.MpMemBreak, 0x1000, 4, []byte{1})
	h.insert(target.MpReadWatch, 0x2000, 4, nil)
	h.clear()
	if h.count() != 0 {
		t.Errorf("count after clear = %d", h.count())
	}
}
