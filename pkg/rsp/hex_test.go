package rsp

import (
	"bytes"
	"testing"
)

func TestIsHexString(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0123456789abcdef", true},
		{"ABCDEF", true},
		{"", false},
		{"12g4", false},
		{"dead beef", false},
	}
	for _, tt := range tests {
		if got := IsHexString([]byte(tt.in)); got != tt.want {
			t.Errorf("IsHexString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNibbleOfChar(t *testing.T) {
	for i, c := range []byte("0123456789abcdef") {
		if got := NibbleOfChar(c); got != byte(i) {
			t.Errorf("NibbleOfChar(%c) = %d, want %d", c, got, i)
		}
	}
	for i, c := range []byte("ABCDEF") {
		if got := NibbleOfChar(c); got != byte(i+10) {
			t.Errorf("NibbleOfChar(%c) = %d, want %d", c, got, i+10)
		}
	}
	for _, c := range []byte{'g', 'z', ' ', 0, 0xff} {
		if got := NibbleOfChar(c); got != BadNibble {
			t.Errorf("NibbleOfChar(%#x) = %d, want BadNibble", c, got)
		}
	}
}

func TestCharOfNibble(t *testing.T) {
	want := "0123456789abcdef"
	for n := byte(0); n < 16; n++ {
		if got := CharOfNibble(n); got != want[n] {
			t.Errorf("CharOfNibble(%d) = %c, want %c", n, got, want[n])
		}
	}
}

func TestRegHexRoundTrip(t *testing.T) {
	vals := []uint64{0, 1, 0xff, 0xdeadbeef, 0x0123456789abcdef, ^uint64(0)}
	for _, le := range []bool{true, false} {
		for numBytes := 1; numBytes <= 8; numBytes++ {
			for _, v := range vals {
				enc := AppendRegHex(nil, v, numBytes, le)
				if len(enc) != numBytes*2 {
					t.Fatalf("AppendRegHex(%#x, %d, %v) produced %d digits", v, numBytes, le, len(enc))
				}
				dec, ok := RegFromHex(enc, le)
				if !ok {
					t.Fatalf("RegFromHex(%q, %v) failed", enc, le)
				}
				mask := ^uint64(0)
				if numBytes < 8 {
					mask = 1<<(uint(numBytes)*8) - 1
				}
				if dec != v&mask {
					t.Errorf("round trip %#x/%d/le=%v = %#x, want %#x", v, numBytes, le, dec, v&mask)
				}
			}
		}
	}
}

func TestRegHexByteOrder(t *testing.T) {
	if got := string(AppendRegHex(nil, 0xdeadbeef, 4, true)); got != "efbeadde" {
		t.Errorf("little-endian encoding = %q, want efbeadde", got)
	}
	if got := string(AppendRegHex(nil, 0xdeadbeef, 4, false)); got != "deadbeef" {
		t.Errorf("big-endian encoding = %q, want deadbeef", got)
	}
}

func TestValHex(t *testing.T) {
	tests := []struct {
		val  uint64
		want string
	}{
		{0, "0"},
		{9, "9"},
		{0x10, "10"},
		{0x1000, "1000"},
		{0xdeadbeef, "deadbeef"},
	}
	for _, tt := range tests {
		if got := string(AppendValHex(nil, tt.val)); got != tt.want {
			t.Errorf("AppendValHex(%#x) = %q, want %q", tt.val, got, tt.want)
		}
		back, ok := ValFromHex([]byte(tt.want))
		if !ok || back != tt.val {
			t.Errorf("ValFromHex(%q) = %#x/%v, want %#x", tt.want, back, ok, tt.val)
		}
	}
	if _, ok := ValFromHex(nil); ok {
		t.Errorf("ValFromHex accepted an empty buffer")
	}
	if _, ok := ValFromHex([]byte("12x4")); ok {
		t.Errorf("ValFromHex accepted a non-digit")
	}
}

func TestHexEncodedRoundTrip(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("hello"),
		{0x00, 0x01, 0xfe, 0xff},
		bytes.Repeat([]byte{0xa5}, 100),
	}
	for _, in := range inputs {
		enc := AppendHexEncoded(nil, in)
		dec, ok := AppendHexDecoded(nil, enc)
		if !ok {
			t.Fatalf("AppendHexDecoded(%q) failed", enc)
		}
		if !bytes.Equal(dec, in) {
			t.Errorf("round trip of %x = %x", in, dec)
		}
	}
	if _, ok := AppendHexDecoded(nil, []byte("abc")); ok {
		t.Errorf("odd length input accepted")
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	inputs := [][]byte{
		[]byte("plain"),
		[]byte("has#hash and $dollar"),
		[]byte("brace}and*star"),
		{'}', '}', '#', '$', '*'},
		{0x00, 0x03, 0x7d, 0x5d},
	}
	for _, in := range inputs {
		esc := AppendEscaped(nil, in)
		got := Unescape(append([]byte(nil), esc...))
		if !bytes.Equal(got, in) {
			t.Errorf("Unescape(AppendEscaped(%q)) = %q", in, got)
		}
	}
}

func TestUnescape(t *testing.T) {
	// '}' ^ 0x20 == ']', so "}]" decodes to "}"
	in := []byte("a}]b")
	got := Unescape(in)
	if string(got) != "a}b" {
		t.Errorf("Unescape = %q, want a}b", got)
	}
}
