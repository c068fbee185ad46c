// Package gifcodec adapts the core LZW codec to the GIF 87a/89a
// container: it owns everything the core stays oblivious to — the
// signature, descriptors, extensions, interlace row reordering and
// sub-block framing — and hands the core nothing but a bit reader
// positioned right after each frame's code-size byte.
package gifcodec

import (
	"fmt"
	"io"

	"flexigo/bitio"
	"flexigo/lzw"
)

// Color is an RGB palette entry.
type Color struct {
	R, G, B byte
}

// ExtensionType identifies a GIF extension block.
type ExtensionType byte

const (
	PlainText      ExtensionType = 0x01
	GraphicControl ExtensionType = 0xF9
	Comment        ExtensionType = 0xFE
	Application    ExtensionType = 0xFF
)

// Extension is one extension block attached ahead of a frame.
type Extension struct {
	Type ExtensionType
	Data []byte
}

// Frame is a single decoded image within the GIF, with enough of its
// original encoding preserved (RawHeader, CodeSize) to re-emit it
// byte-identically except for its LZW payload.
type Frame struct {
	RawHeader  []byte
	Extensions []Extension

	CodeSize uint8
	Pixels   []byte

	OffsetLeft, OffsetTop uint16
	Width, Height         uint16

	IsSorted      bool
	IsInterlaced  bool
	PosInterlaced int // absolute byte offset of the packed field within the original file; 0 means "not found"
	LocalColorMap []Color

	NumLzwBits int

	rawHeaderOffset int // absolute byte offset where RawHeader begins, so PosInterlaced can be translated into an index into it
}

// Image is a fully decoded GIF: every frame's pixel indices plus enough
// of the surrounding container to reconstruct the file byte-for-byte
// around a replacement LZW payload.
type Image struct {
	RawHeader  []byte
	RawTrailer []byte

	Version string
	Width, Height uint16
	ColorDepth    uint8
	IsSorted      bool
	BackgroundColor, AspectRatio byte
	IsAnimated bool

	GlobalColorMap []Color

	Frames []Frame
}

func getWord(r *bitio.Reader) (uint16, error) {
	low, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	high, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	return uint16(low) | uint16(high)<<8, nil
}

func readColorMap(r *bitio.Reader, size int) ([]Color, error) {
	if size == 0 {
		return nil, nil
	}
	colors := make([]Color, size)
	for i := range colors {
		red, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		green, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		blue, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		colors[i] = Color{R: red, G: green, B: blue}
	}
	return colors, nil
}

func newMalformed(offset int, format string, args ...any) *lzw.Error {
	return &lzw.Error{Kind: lzw.ErrMalformed, Offset: int64(offset), Msg: fmt.Sprintf(format, args...)}
}

func parseSignature(r *bitio.Reader) (string, error) {
	raw := make([]byte, 6)
	for i := range raw {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		raw[i] = b
	}
	version := string(raw)
	if raw[0] != 'G' || raw[1] != 'I' || raw[2] != 'F' {
		return "", newMalformed(r.BytesRead(), "invalid file signature")
	}
	if raw[3] != '8' || (raw[4] != '7' && raw[4] != '9') || raw[5] != 'a' {
		return "", newMalformed(r.BytesRead(), "invalid GIF version %q, only 87a and 89a supported", version)
	}
	return version, nil
}

func parseGlobalDescriptor(r *bitio.Reader, img *Image) error {
	var err error
	if img.Width, err = getWord(r); err != nil {
		return err
	}
	if img.Height, err = getWord(r); err != nil {
		return err
	}

	depth, err := r.Read(3)
	if err != nil {
		return err
	}
	img.ColorDepth = uint8(depth) + 1
	sizeGlobalColorMap := 1 << img.ColorDepth

	sorted, err := r.Read(1)
	if err != nil {
		return err
	}
	img.IsSorted = sorted != 0

	if err := r.Consume(3); err != nil {
		return err
	}

	hasGlobalColorMap, err := r.Read(1)
	if err != nil {
		return err
	}
	if hasGlobalColorMap == 0 {
		sizeGlobalColorMap = 0
	}

	bg, err := r.ReadByte()
	if err != nil {
		return err
	}
	img.BackgroundColor = bg

	aspect, err := r.ReadByte()
	if err != nil {
		return err
	}
	img.AspectRatio = aspect

	img.GlobalColorMap, err = readColorMap(r, sizeGlobalColorMap)
	return err
}

func parseExtensions(r *bitio.Reader, frame *Frame, img *Image) error {
	for {
		marker, err := r.Peek(8)
		if err != nil {
			return err
		}
		if marker != 0x21 {
			return nil
		}
		if err := r.Consume(8); err != nil {
			return err
		}

		idBits, err := r.Read(8)
		if err != nil {
			return err
		}
		id := ExtensionType(idBits)
		if id == GraphicControl {
			img.IsAnimated = true
		}

		var data []byte
		for {
			length, err := r.ReadByte()
			if err != nil {
				return err
			}
			if length == 0 {
				break
			}
			for i := byte(0); i < length; i++ {
				b, err := r.ReadByte()
				if err != nil {
					return err
				}
				data = append(data, b)
			}
		}
		frame.Extensions = append(frame.Extensions, Extension{Type: id, Data: data})
	}
}

func parseLocalDescriptor(r *bitio.Reader, frame *Frame) error {
	id, err := r.ReadByte()
	if err != nil {
		return err
	}
	if id != 0x2C {
		return newMalformed(r.BytesRead(), "expected local descriptor, found 0x%02X", id)
	}

	if frame.OffsetLeft, err = getWord(r); err != nil {
		return err
	}
	if frame.OffsetTop, err = getWord(r); err != nil {
		return err
	}
	if frame.Width, err = getWord(r); err != nil {
		return err
	}
	if frame.Height, err = getWord(r); err != nil {
		return err
	}

	frame.PosInterlaced = r.BytesRead()

	sizeBits, err := r.Read(3)
	if err != nil {
		return err
	}
	sizeLocalColorMap := 1 << (sizeBits + 1)

	if err := r.Consume(2); err != nil {
		return err
	}

	sorted, err := r.Read(1)
	if err != nil {
		return err
	}
	frame.IsSorted = sorted != 0

	interlaced, err := r.Read(1)
	if err != nil {
		return err
	}
	frame.IsInterlaced = interlaced != 0

	hasLocalColorMap, err := r.Read(1)
	if err != nil {
		return err
	}
	if hasLocalColorMap == 0 {
		sizeLocalColorMap = 0
	}

	frame.LocalColorMap, err = readColorMap(r, sizeLocalColorMap)
	return err
}

func parseTerminator(r *bitio.Reader) error {
	id, err := r.ReadByte()
	if err != nil {
		return err
	}
	if id != 0x3B {
		return newMalformed(r.BytesRead(), "invalid terminator 0x%02X", id)
	}
	return nil
}

// Decode reads and parses a complete GIF file, decompressing every
// frame's LZW payload. logger is handed to each frame's LZW decoder,
// which does not write anything to it; nil is accepted.
func Decode(src io.Reader, logger lzw.Logger) (*Image, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, newMalformed(0, "file not found or empty")
	}

	r := bitio.NewReader(data)
	img := &Image{}

	version, err := parseSignature(r)
	if err != nil {
		return nil, err
	}
	img.Version = version

	if err := parseGlobalDescriptor(r, img); err != nil {
		return nil, err
	}

	numBytesHeader := r.BytesRead()
	img.RawHeader = append([]byte(nil), data[:numBytesHeader]...)

	for {
		bytesReadSoFar := r.BytesRead()

		marker, err := r.Peek(8)
		if err != nil {
			return nil, err
		}
		if marker == 0x3B {
			break
		}

		var frame Frame
		if err := parseExtensions(r, &frame, img); err != nil {
			return nil, err
		}
		if err := parseLocalDescriptor(r, &frame); err != nil {
			return nil, err
		}

		frameHeaderSize := r.BytesRead() - bytesReadSoFar
		frame.RawHeader = append([]byte(nil), data[bytesReadSoFar:bytesReadSoFar+frameHeaderSize]...)
		frame.rawHeaderOffset = bytesReadSoFar

		minCodeSize, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		const maxCodeSize = 12

		dec := lzw.NewDecoder(r, true, logger)
		pixels, err := dec.Decode(minCodeSize, maxCodeSize, int(img.Width)*int(img.Height))
		if err != nil {
			return nil, err
		}
		frame.Pixels = pixels
		frame.CodeSize = minCodeSize
		frame.NumLzwBits = dec.NumCompressedBits()

		img.Frames = append(img.Frames, frame)
	}

	trailerByte, err := r.Peek(8)
	if err != nil {
		return nil, err
	}
	img.RawTrailer = []byte{byte(trailerByte)}
	if err := parseTerminator(r); err != nil {
		return nil, err
	}
	if !r.Empty() {
		return nil, newMalformed(r.BytesRead(), "there is still some data left after the terminator")
	}

	return img, nil
}

// WriteOptimized re-emits img with every frame's LZW payload replaced
// by packedBits[frame] (one flat, bit-exact LZW bitstream per frame,
// as produced by lzw.Encoder), repacked into ≤255-byte GIF sub-blocks.
// Every other byte — signature, descriptors, extensions, trailer — is
// copied from the original file untouched. bitDepth overrides the
// frame's code-size byte; 0 means "keep the frame's own value".
func (img *Image) WriteOptimized(w io.Writer, packedBits [][]byte, bitDepth uint8) (int, error) {
	var out []byte
	out = append(out, img.RawHeader...)

	for i, bits := range packedBits {
		codeSize := img.Frames[i].CodeSize
		if bitDepth != 0 {
			codeSize = bitDepth
		}
		out = append(out, img.Frames[i].RawHeader...)
		out = append(out, codeSize)
		out = append(out, packSubBlocks(bits)...)
	}

	out = append(out, img.RawTrailer...)
	return w.Write(out)
}

// packSubBlocks frames a flat LZW byte stream into GIF's length-prefixed
// sub-blocks (at most 255 bytes each), terminated by a zero-length block.
func packSubBlocks(bits []byte) []byte {
	var out []byte
	pos := 0
	for pos < len(bits) {
		chunk := len(bits) - pos
		if chunk > 255 {
			chunk = 255
		}
		out = append(out, byte(chunk))
		out = append(out, bits[pos:pos+chunk]...)
		pos += chunk
	}
	out = append(out, 0)
	return out
}

// interlacePasses returns, for each of the four interlace passes, the
// row at which it begins and its row stride.
func interlacePasses(height int) [4][2]int {
	return [4][2]int{
		{0, 8},
		{4, 8},
		{2, 4},
		{1, 2},
	}
}

// SetInterlacing reorders frame's pixel rows between the row-major
// layout and GIF's four-pass interlace layout. It supports only
// single-frame images; multi-frame (animated) interlacing is not
// implemented by the original this adapter is grounded on.
func (img *Image) SetInterlacing(frame int, makeInterlaced bool) error {
	if len(img.Frames) != 1 || frame != 0 {
		return &lzw.Error{Kind: lzw.ErrMisuse, Offset: -1, Msg: "interlacing is only supported for single-frame GIFs"}
	}

	f := &img.Frames[0]
	if f.PosInterlaced == 0 {
		return &lzw.Error{Kind: lzw.ErrMalformed, Offset: -1, Msg: "interlaced bit not found"}
	}
	if img.IsAnimated {
		return &lzw.Error{Kind: lzw.ErrMisuse, Offset: -1, Msg: "interlacing in animations is not supported"}
	}

	height := int(img.Height)
	width := int(img.Width)
	if height <= 1 {
		return nil
	}

	idx := f.PosInterlaced - f.rawHeaderOffset
	if idx < 0 || idx >= len(f.RawHeader) {
		return &lzw.Error{Kind: lzw.ErrMalformed, Offset: -1, Msg: "interlaced bit position out of range"}
	}

	const mask = 0x40
	isInterlaced := f.RawHeader[idx]&mask != 0
	if isInterlaced == makeInterlaced {
		return nil
	}

	current := f.Pixels
	f.IsInterlaced = makeInterlaced

	if makeInterlaced {
		f.RawHeader[idx] |= mask

		interlaced := make([]byte, 0, len(current))
		for _, pass := range interlacePasses(height) {
			for y := pass[0]; y < height; y += pass[1] {
				interlaced = append(interlaced, current[y*width:y*width+width]...)
			}
		}
		f.Pixels = interlaced
	} else {
		f.RawHeader[idx] &^= mask

		interlaced := current
		reordered := make([]byte, 0, len(current))

		pass0 := 0
		pass1 := (height + 7) / 8
		pass2 := pass1 + (height+3)/8
		pass3 := pass2 + (height+1)/4

		for y := 0; y < height; y++ {
			switch y % 8 {
			case 0:
				reordered = append(reordered, interlaced[pass0*width:(pass0+1)*width]...)
				pass0++
			case 4:
				reordered = append(reordered, interlaced[pass1*width:(pass1+1)*width]...)
				pass1++
			case 2, 6:
				reordered = append(reordered, interlaced[pass2*width:(pass2+1)*width]...)
				pass2++
			default:
				reordered = append(reordered, interlaced[pass3*width:(pass3+1)*width]...)
				pass3++
			}
		}
		f.Pixels = reordered
	}

	return nil
}
