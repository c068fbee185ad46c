package zcodec_test

import (
	"bytes"
	"testing"

	"flexigo/lzw"
	"flexigo/zcodec"
)

// buildZFile assembles a minimal but valid .Z file: magic bytes,
// settings byte (block mode set, max bits 16), and an LZW payload
// encoding of data.
func buildZFile(t *testing.T, data []byte) []byte {
	t.Helper()
	enc := lzw.NewEncoder(data, false)
	packed, err := enc.Optimize(lzw.Settings{
		Alignment:   1,
		MinCodeSize: 8,
		Greedy:      true,
	})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	f := &zcodec.File{Settings: 0x80 | 16}
	var buf bytes.Buffer
	if _, err := f.WriteOptimized(&buf, packed); err != nil {
		t.Fatalf("WriteOptimized: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeRoundTrip(t *testing.T) {
	original := bytes.Repeat([]byte("mississippi river "), 40)
	raw := buildZFile(t, original)

	f, err := zcodec.Decode(bytes.NewReader(raw), false, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(f.Data, original) {
		t.Fatalf("decoded %d bytes, want %d bytes matching the original", len(f.Data), len(original))
	}
	if f.MaxBits() != 16 {
		t.Fatalf("MaxBits() = %d, want 16", f.MaxBits())
	}
}

func TestDecodeRejectsBadMagicByDefault(t *testing.T) {
	_, err := zcodec.Decode(bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x01}), false, nil)
	if err == nil {
		t.Fatalf("expected an error for bad magic bytes")
	}
	lzwErr, ok := err.(*lzw.Error)
	if !ok {
		t.Fatalf("expected *lzw.Error, got %T", err)
	}
	if lzwErr.Kind != lzw.ErrMalformed {
		t.Fatalf("Kind = %v, want ErrMalformed", lzwErr.Kind)
	}
}

func TestDecodeFallsBackToRawWhenAllowed(t *testing.T) {
	raw := []byte("not a compress file at all")
	f, err := zcodec.Decode(bytes.NewReader(raw), true, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(f.Data, raw) {
		t.Fatalf("fallback Data = %q, want %q", f.Data, raw)
	}
}

func TestDecodeRejectsNonBlockMode(t *testing.T) {
	_, err := zcodec.Decode(bytes.NewReader([]byte{0x1F, 0x9D, 0x10}), false, nil)
	if err == nil {
		t.Fatalf("expected an error for a non-block-mode settings byte")
	}
}

func TestWriteOptimizedPreservesHeader(t *testing.T) {
	f := &zcodec.File{Settings: 0x80 | 15}
	var buf bytes.Buffer
	if _, err := f.WriteOptimized(&buf, []byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("WriteOptimized: %v", err)
	}
	got := buf.Bytes()
	want := []byte{0x1F, 0x9D, 0x80 | 15, 0xAA, 0xBB}
	if !bytes.Equal(got, want) {
		t.Fatalf("WriteOptimized = %v, want %v", got, want)
	}
}
