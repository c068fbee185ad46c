package lzw_test

import (
	"bytes"
	stdlzw "compress/lzw"
	"io"
	"testing"

	"flexigo/bitio"
	"flexigo/lzw"
)

// packGIFSubBlocks frames a flat LZW bitstream the way the GIF
// container does: length-prefixed chunks of at most 255 bytes followed
// by a zero-length terminator. This mirrors gifcodec.packSubBlocks but
// is reimplemented locally to keep these tests free of a dependency on
// a package that itself depends on lzw (gifcodec imports lzw).
func packGIFSubBlocks(bits []byte) []byte {
	var out []byte
	for len(bits) > 0 {
		n := len(bits)
		if n > 255 {
			n = 255
		}
		out = append(out, byte(n))
		out = append(out, bits[:n]...)
		bits = bits[n:]
	}
	return append(out, 0)
}

func zSettings() lzw.Settings {
	return lzw.Settings{
		Alignment:         1,
		MinCodeSize:       8,
		Greedy:            true,
		MinNonGreedyMatch: 2,
		MinImprovement:    1,
	}
}

func gifSettings(minCodeSize uint8) lzw.Settings {
	return lzw.Settings{
		Alignment:          1,
		MinCodeSize:        minCodeSize,
		Greedy:             true,
		MinNonGreedyMatch:  2,
		MinImprovement:     1,
		StartWithClearCode: true,
	}
}

func TestZRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		s    func() lzw.Settings
	}{
		{"greedy_repeated_pattern", bytes.Repeat([]byte("abcabcabcabc"), 50), zSettings},
		{"run_of_same_byte", bytes.Repeat([]byte{0x42}, 2000), zSettings},
		{"nongreedy", bytes.Repeat([]byte("abcabcabcabc"), 50), func() lzw.Settings {
			s := zSettings()
			s.Greedy = false
			return s
		}},
		{"splitruns_nongreedy", bytes.Repeat([]byte{0x7}, 600), func() lzw.Settings {
			s := zSettings()
			s.Greedy = false
			s.SplitRuns = true
			return s
		}},
		{"smartgreedy", append(bytes.Repeat([]byte("xyzxyzxyz"), 30), bytes.Repeat([]byte{1, 2, 3}, 40)...), func() lzw.Settings {
			s := zSettings()
			s.SmartGreedy = true
			return s
		}},
		{"kwkwk", []byte{1, 2, 1, 2, 1, 2, 1}, zSettings},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc := lzw.NewEncoder(tc.data, false)
			packed, err := enc.Optimize(tc.s())
			if err != nil {
				t.Fatalf("Optimize: %v", err)
			}

			dec := lzw.NewDecoder(bitio.NewReader(packed), false, nil)
			got, err := dec.Decode(8, 16, len(tc.data))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !bytes.Equal(got, tc.data) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(tc.data))
			}
		})
	}
}

func TestGIFRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"small_palette_runs", bytes.Repeat([]byte{0, 1, 2, 3, 0, 1, 2, 3}, 40)},
		{"single_color", bytes.Repeat([]byte{5}, 300)},
		{"kwkwk", []byte{0, 1, 0, 1, 0, 1, 0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc := lzw.NewEncoder(tc.data, true)
			packed, err := enc.Optimize(gifSettings(3))
			if err != nil {
				t.Fatalf("Optimize: %v", err)
			}

			framed := packGIFSubBlocks(packed)
			dec := lzw.NewDecoder(bitio.NewReader(framed), true, nil)
			got, err := dec.Decode(3, 12, len(tc.data))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !bytes.Equal(got, tc.data) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(tc.data))
			}
		})
	}
}

// TestOptimizeNeverWorseThanSingleBlock checks the DP monotonicity
// property: the globally optimal restart set found by Optimize never
// produces a longer bitstream than a single non-restarting block over
// the same data and settings.
func TestOptimizeNeverWorseThanSingleBlock(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 30)

	optimized := lzw.NewEncoder(data, false)
	best, err := optimized.Optimize(zSettings())
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	single := lzw.NewEncoder(data, false)
	whole, err := single.Merge([]uint32{uint32(len(data))}, zSettings())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if len(best) > len(whole) {
		t.Fatalf("DP-optimized output is %d bytes, worse than the single-block encoding's %d bytes", len(best), len(whole))
	}
}

// TestGIFStreamDecodesWithStandardLibrary cross-checks the bit-packing
// and clear/EOF code conventions of the GIF variant against the
// standard library's own LZW reader (which implements the same GIF
// convention: LSB-first, clear code at 1<<litWidth, EOF right after).
// Only single-block (non-restarting) streams are comparable this way,
// since the stdlib reader has no notion of the DP restart boundaries
// this package introduces.
func TestGIFStreamDecodesWithStandardLibrary(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4, 5, 6, 7, 0, 1, 2, 3, 4, 5, 6, 7, 0, 1, 2, 3}
	const minCodeSize = 3

	enc := lzw.NewEncoder(data, true)
	packed, err := enc.Merge([]uint32{uint32(len(data))}, gifSettings(minCodeSize))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	r := stdlzw.NewReader(bytes.NewReader(packed), stdlzw.LSB, minCodeSize)
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("standard library LZW reader: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("stdlib decode mismatch: got %v, want %v", got, data)
	}
}
