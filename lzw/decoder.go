package lzw

import "flexigo/bitio"

// noEndOfStream marks the absence of a GIF-style end-of-stream token,
// used by the .Z variant of the format.
const noEndOfStream = ^uint32(0)

// backRef is a decoded dictionary entry: the string it denotes is
// backRef[parent] followed by last, recovered by walking parent chains.
type backRef struct {
	previous int32
	last     byte
	length   uint32
}

// Decoder reconstructs the literal byte stream from an LZW bitstream.
// It understands the two framing modes named in §4.2: GIF sub-block
// framing (length-prefixed, 255 bytes max per sub-block) and the raw,
// restart-padded .Z framing.
type Decoder struct {
	input *bitio.Reader
	isGIF bool

	bitsLeftInBlock     uint32 // GIF: bits remaining in the current sub-block
	numBitsOriginalLZW  int
	logger              Logger
}

// NewDecoder prepares a decoder over input, which must already be
// positioned right after any container header the adapter owns (the
// code-size byte for GIF, the three magic/settings bytes for .Z).
func NewDecoder(input *bitio.Reader, isGIF bool, logger Logger) *Decoder {
	return &Decoder{input: input, isGIF: isGIF, logger: logger}
}

// NumCompressedBits returns the number of true LZW payload bits consumed,
// excluding GIF sub-block length-prefix bytes.
func (d *Decoder) NumCompressedBits() int {
	return d.numBitsOriginalLZW
}

// getLzwBits reads the next numBits bits of LZW payload, transparently
// crossing GIF sub-block boundaries by consuming the next length byte.
func (d *Decoder) getLzwBits(numBits uint8) (uint32, error) {
	if numBits == 0 {
		return 0, nil
	}
	d.numBitsOriginalLZW += int(numBits)

	if !d.isGIF {
		return d.input.Read(numBits)
	}

	if uint32(numBits) <= d.bitsLeftInBlock {
		d.bitsLeftInBlock -= uint32(numBits)
		return d.input.Read(numBits)
	}

	var low uint32
	var shift uint8
	remaining := numBits
	if d.bitsLeftInBlock > 0 {
		lowBits := uint8(d.bitsLeftInBlock)
		v, err := d.input.Read(lowBits)
		if err != nil {
			return 0, err
		}
		low = v
		shift = lowBits
		remaining -= lowBits
		d.bitsLeftInBlock = 0
	}

	lenByte, err := d.input.ReadByte()
	if err != nil {
		return 0, err
	}
	d.bitsLeftInBlock = uint32(lenByte) * 8
	if d.bitsLeftInBlock < uint32(remaining) {
		return 0, newErr(ErrMalformed, int64(d.input.BytesRead()), "too few bits available after sub-block boundary")
	}

	high, err := d.input.Read(remaining)
	if err != nil {
		return 0, err
	}
	d.bitsLeftInBlock -= uint32(remaining)

	return low | (high << shift), nil
}

// appendCode appends the byte string denoted by code to out, walking the
// parent chain backward into a pre-reserved tail region.
func appendCode(out []byte, code int32, lut []backRef) []byte {
	if lut[code].length == 1 {
		return append(out, lut[code].last)
	}
	length := int(lut[code].length)
	start := len(out)
	out = append(out, make([]byte, length)...)
	pos := start + length - 1
	for c := code; ; {
		out[pos] = lut[c].last
		pos--
		c = lut[c].previous
		length--
		if length == 0 {
			break
		}
	}
	return out
}

// consumeTrailer discards any bits left over in the final GIF sub-block
// and checks for the zero-length terminator block. The .Z format has no
// trailer to consume: decoding simply stops when bits run out.
func (d *Decoder) consumeTrailer() error {
	if !d.isGIF {
		return nil
	}
	unused := d.bitsLeftInBlock
	totalUnused := unused
	for unused > 8 {
		if _, err := d.getLzwBits(8); err != nil {
			return err
		}
		unused -= 8
	}
	if _, err := d.getLzwBits(uint8(unused)); err != nil {
		return err
	}
	d.numBitsOriginalLZW -= int(totalUnused)

	term, err := d.input.ReadByte()
	if err != nil {
		return err
	}
	if term != 0 {
		return newErr(ErrMalformed, int64(d.input.BytesRead()), "LZW data is not properly terminated")
	}
	return nil
}

// Decode reconstructs the literal byte stream. minCodeSize/maxCodeSize
// bound the code width: GIF caps at 12 bits, .Z typically at 16.
// sizeHint pre-sizes the output buffer to avoid reallocation.
func (d *Decoder) Decode(minCodeSize, maxCodeSize uint8, sizeHint int) ([]byte, error) {
	clear := uint32(1) << minCodeSize
	var endOfStream uint32 = noEndOfStream
	if d.isGIF {
		endOfStream = clear + 1
	}
	maxColor := clear - 1
	maxToken := uint32(1) << maxCodeSize

	liveCodes := clear + 1
	if d.isGIF {
		liveCodes = clear + 2
	}
	lut := make([]backRef, liveCodes, maxToken)
	for i := uint32(0); i <= maxColor; i++ {
		lut[i] = backRef{previous: -1, last: byte(i), length: 1}
	}

	codeSize := minCodeSize + 1
	d.bitsLeftInBlock = 0

	out := make([]byte, 0, sizeHint)

	token, err := d.getLzwBits(codeSize)
	if err != nil {
		return nil, err
	}
	for token == clear {
		token, err = d.getLzwBits(codeSize)
		if err != nil {
			return nil, err
		}
	}
	if token >= uint32(len(lut)) {
		return nil, newErr(ErrMalformed, int64(d.input.BytesRead()), "initial token %d but only %d dictionary entries", token, len(lut))
	}
	if token != endOfStream {
		out = append(out, byte(token))
	}

	numTokensBlock := uint32(1)
	prevToken := int32(-1)

	for token != endOfStream {
		powerOfTwo := uint32(1) << codeSize
		if uint32(len(lut)) == powerOfTwo && codeSize < maxCodeSize {
			codeSize++
		}
		if !d.isGIF && int(codeSize) > d.input.BitsLeft() {
			break
		}

		prevToken = int32(token)
		token, err = d.getLzwBits(codeSize)
		if err != nil {
			return nil, err
		}
		if token > uint32(len(lut)) {
			return nil, newErr(ErrMalformed, int64(d.input.BytesRead()), "token %d (%d bits, byte %d) but only %d dictionary entries", token, codeSize, len(out), len(lut))
		}
		numTokensBlock++

		reset := false
		for token == clear {
			if d.isGIF {
				lut = lut[:clear+2]
			} else {
				lut = lut[:clear+1]
				if d.numBitsOriginalLZW%8 != 0 {
					skip := uint8(8 - d.numBitsOriginalLZW%8)
					if _, err := d.getLzwBits(skip); err != nil {
						return nil, err
					}
				}
				mod8 := numTokensBlock & 7
				gap := uint32(0)
				if mod8 != 0 {
					gap = 8 - mod8
				}
				for ; gap > 0; gap-- {
					if _, err := d.getLzwBits(codeSize); err != nil {
						return nil, err
					}
				}
			}

			codeSize = minCodeSize + 1
			prevToken = -1
			token, err = d.getLzwBits(codeSize)
			if err != nil {
				return nil, err
			}
			numTokensBlock = 1

			if token > maxColor {
				return nil, newErr(ErrMalformed, int64(d.input.BytesRead()), "block restarts with undefined value %d", token)
			}
			out = append(out, byte(token))
			reset = true
		}
		if reset {
			continue
		}

		if token == endOfStream {
			break
		}

		pos := len(out)
		var last byte
		if token >= uint32(len(lut)) {
			if token != uint32(len(lut)) {
				return nil, newErr(ErrMalformed, int64(d.input.BytesRead()), "unknown token %d", token)
			}
			if uint32(len(lut)) >= maxToken {
				return nil, newErr(ErrResourceConstraint, int64(d.input.BytesRead()), "dictionary too large")
			}
			// KwKwK: output and insert prevToken's string plus its own first byte.
			out = appendCode(out, prevToken, lut)
			last = out[pos]
			out = append(out, last)
		} else {
			out = appendCode(out, int32(token), lut)
			last = out[pos]
		}

		if uint32(len(lut)) < maxToken {
			lut = append(lut, backRef{previous: prevToken, last: last, length: lut[prevToken].length + 1})
		}
	}

	if err := d.consumeTrailer(); err != nil {
		return nil, err
	}

	return out, nil
}
