// Package zcodec adapts the core LZW codec to the Unix compress .Z
// container: a three-byte header (magic, settings) followed by a raw,
// restart-padded LZW bitstream with no sub-block framing.
package zcodec

import (
	"io"

	"flexigo/bitio"
	"flexigo/lzw"
)

const (
	magicByte1 = 0x1F
	magicByte2 = 0x9D
)

// File is a fully decoded .Z file: the literal uncompressed bytes plus
// the settings byte needed to re-emit the header untouched.
type File struct {
	Settings byte // bit7: block mode, bits5-6: reserved (zero), bits0-4: max code bits
	Data     []byte
}

// MaxBits returns the maximum LZW code width recorded in the settings
// byte — almost always 16.
func (f *File) MaxBits() uint8 {
	return f.Settings & 0x1F
}

func newErr(kind lzw.ErrorKind, offset int64, msg string) *lzw.Error {
	return &lzw.Error{Kind: kind, Offset: offset, Msg: msg}
}

// Decode reads r and parses it as a .Z file, decompressing its
// payload. If loadRawIfBadMagic is set and the magic bytes don't
// match, the entire input is returned verbatim as File.Data with a
// zero Settings byte instead of failing — useful for tools that accept
// either a .Z file or a raw, already-uncompressed one. logger is handed
// to the LZW decoder, which does not write anything to it; nil is
// accepted.
func Decode(r io.Reader, loadRawIfBadMagic bool, logger lzw.Logger) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, newErr(lzw.ErrMalformed, 0, "file not found or empty")
	}

	// Mirrors the original's magic-byte check exactly, including its
	// either-byte-matches quirk (Compress.cpp: isZ |= byte1==Magic2).
	isZ := len(data) >= 2 && (data[0] == magicByte1 || data[1] == magicByte2)

	if !isZ {
		if !loadRawIfBadMagic {
			return nil, newErr(lzw.ErrMalformed, 0, "magic bytes don't match: not a .Z compressed file")
		}
		return &File{Data: data}, nil
	}
	if len(data) < 3 {
		return nil, newErr(lzw.ErrMalformed, 0, "too short to hold a .Z header")
	}

	settings := data[2]
	if settings&0x80 == 0 {
		return nil, newErr(lzw.ErrFormatConstraint, 2, "only .Z block mode is supported")
	}
	if settings&0x60 != 0 {
		return nil, newErr(lzw.ErrFormatConstraint, 2, "unknown .Z format flag found")
	}
	maxBits := settings & 0x1F

	br := bitio.NewReader(data[3:])
	dec := lzw.NewDecoder(br, false, logger)

	// crude heuristic for the size of the uncompressed data, matching
	// the ratio the original codec assumes when pre-sizing its buffer.
	expected := 3 * len(data)
	out, err := dec.Decode(8, maxBits, expected)
	if err != nil {
		return nil, err
	}

	return &File{Settings: settings, Data: out}, nil
}

// WriteOptimized re-emits f with its LZW payload replaced by packed
// (a single flat, bit-exact .Z-framed bitstream as produced by
// lzw.Encoder). The three-byte header is copied from f.Settings.
func (f *File) WriteOptimized(w io.Writer, packed []byte) (int, error) {
	out := make([]byte, 0, 3+len(packed))
	out = append(out, magicByte1, magicByte2, f.Settings)
	out = append(out, packed...)
	return w.Write(out)
}
