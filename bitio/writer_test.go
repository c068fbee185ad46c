package bitio

import "testing"

func TestWriterRoundTripsThroughReader(t *testing.T) {
	w := NewWriter()
	widths := []uint8{3, 9, 1, 16, 5}
	values := []uint32{0b101, 0x1AB, 1, 0xBEEF, 0b10110}

	for i, v := range values {
		w.WriteBits(v, widths[i])
	}

	r := NewReader(w.Bytes())
	for i, want := range values {
		got, err := r.Read(widths[i])
		if err != nil {
			t.Fatalf("Read(%d): %v", widths[i], err)
		}
		if got != want {
			t.Fatalf("value %d: Read() = %#x, want %#x", i, got, want)
		}
	}
}

func TestWriterAlignToByte(t *testing.T) {
	w := NewWriter()
	w.WriteBits(0b101, 3)
	pad := w.AlignToByte()
	if pad != 5 {
		t.Fatalf("AlignToByte() = %d, want 5", pad)
	}
	if w.Len() != 8 {
		t.Fatalf("Len() after align = %d, want 8", w.Len())
	}
	if w.AlignToByte() != 0 {
		t.Fatalf("second AlignToByte() should be a no-op when already aligned")
	}
}

func TestWriterAppendPreservesBitOrder(t *testing.T) {
	a := NewWriter()
	a.WriteBits(0b11, 2)
	b := NewWriter()
	b.WriteBits(0b010, 3)

	a.Append(b)
	if a.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", a.Len())
	}

	r := NewReader(a.Bytes())
	first, _ := r.Read(2)
	second, _ := r.Read(3)
	if first != 0b11 || second != 0b010 {
		t.Fatalf("got (%b, %b), want (11, 010)", first, second)
	}
}

func TestWriterZeroBits(t *testing.T) {
	w := NewWriter()
	w.WriteBit(true)
	w.WriteZeroBits(10)
	w.WriteBit(true)

	r := NewReader(w.Bytes())
	first, _ := r.Read(1)
	zeros, _ := r.Read(10)
	last, _ := r.Read(1)
	if first != 1 || zeros != 0 || last != 1 {
		t.Fatalf("got (%d, %d, %d), want (1, 0, 1)", first, zeros, last)
	}
}
