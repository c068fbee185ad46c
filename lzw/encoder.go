package lzw

import "flexigo/bitio"

// bestBlock records the locally optimal encoding of the block starting
// at some aligned input offset, plus the cost of every block that
// follows it along the globally optimal path. totalBits == 0 means
// "unreached".
type bestBlock struct {
	length    uint32
	bits      uint32
	totalBits uint64
	tokens    uint32
	nongreedy uint32
	partial   bool
}

// Encoder holds the literal byte stream plus the dictionary trie and
// best[] table used to find a minimal-bit LZW encoding of it. An
// Encoder is single-use: construct one per frame/file, run one
// Optimize (or OptimizePartial/Merge) session against it, discard it.
type Encoder struct {
	data []byte

	isGIF       bool
	maxCodeBits uint8  // 12 for GIF, 16 for .Z
	maxDictCap  uint32 // (1 << maxCodeBits) - 1, the format's hard cap

	dict *trie
	best []bestBlock
}

// NewEncoder borrows data (it is never copied or mutated) for the
// duration of an encode session.
func NewEncoder(data []byte, isGIF bool) *Encoder {
	maxBits := uint8(12)
	if !isGIF {
		maxBits = 16
	}
	return &Encoder{
		data:        data,
		isGIF:       isGIF,
		maxCodeBits: maxBits,
		maxDictCap:  (uint32(1) << maxBits) - 1,
	}
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}

// findMatch returns the length of the longest prefix of data[from:]
// already present in the dictionary, capped at maxLength.
func (e *Encoder) findMatch(from, maxLength uint32) uint32 {
	code := int32(e.data[from])
	from++
	for length := uint32(1); length < maxLength; length++ {
		b := e.data[from]
		from++
		child := e.dict.child(code, b)
		if child == unknownChild {
			return length
		}
		code = child
	}
	return maxLength
}

// addCode canonicalises the match data[from:from+length] by walking the
// trie, inserting a new child for the following byte (if any, and if
// the dictionary has not reached its hard cap). An existing child is
// never overwritten — required so a non-greedy match, which may take a
// shorter path than the one that originally created a code, still
// resolves to a decoder-consistent dictionary.
func (e *Encoder) addCode(from, length uint32, dictSize *uint32) int32 {
	code := int32(e.data[from])
	from++
	for i := uint32(1); i < length; i++ {
		b := e.data[from]
		from++
		code = e.dict.child(code, b)
	}
	if from < uint32(len(e.data)) {
		lastByte := e.data[from]
		if *dictSize < e.maxDictCap {
			e.dict.setChildIfEmpty(code, lastByte, int32(*dictSize))
			*dictSize++
		}
	}
	return code
}

func (e *Encoder) ensureAllocated(alignment uint32) {
	if e.dict == nil {
		e.dict = newTrie(e.maxDictCap)
	}
	if e.best == nil {
		e.best = make([]bestBlock, uint32(len(e.data))/alignment+2)
	}
}

// OptimizePartial simulates (emit=false) or actually emits (emit=true)
// an LZW encoding of data[from:from+maxLength] (maxLength==0 means "to
// the end of the data"), starting from a fresh dictionary. Unless
// s.ReadOnlyBest is set, it treats every aligned offset it passes
// through as a candidate end of the block and keeps the cheapest
// candidate in best[from/alignment].
func (e *Encoder) OptimizePartial(from, maxLength uint32, emit, isFinal bool, s Settings) (*bitio.Writer, error) {
	alignment := s.Alignment
	if alignment == 0 {
		alignment = 1
	}
	if from%alignment != 0 {
		return nil, newErr(ErrMisuse, int64(from), "optimizePartial is not allowed to start at a non-aligned offset (alignment=%d)", alignment)
	}

	e.ensureAllocated(alignment)
	fromAligned := from / alignment

	if s.Greedy && s.AvoidNonGreedyAgain && !emit &&
		e.best[fromAligned].nongreedy == 0 && e.best[fromAligned].length > 0 {
		return nil, nil
	}

	length := uint32(len(e.data)) - from
	if maxLength != 0 && length > maxLength {
		length = maxLength
	}

	var writer *bitio.Writer
	if emit {
		writer = bitio.NewWriter()
	}

	clear := uint32(1) << s.MinCodeSize
	endOfStream := clear + 1

	liveCodes := clear + 1
	if e.isGIF {
		liveCodes = clear + 2
	}
	e.dict.reset(liveCodes)
	dictSize := liveCodes

	var numBits, numTokens, numNonGreedy uint32
	var matchLength uint32
	codeSize := getMinBits(dictSize)

	blockEnd := from + length
	for i := from; i < blockEnd; i++ {
		numBytes := i - from + 1

		if matchLength == 0 {
			if s.MaxDict > 0 && dictSize >= s.MaxDict {
				break
			}
			if s.MaxTokens > 0 && numTokens >= s.MaxTokens {
				break
			}

			remaining := blockEnd - i
			matchLength = e.findMatch(i, remaining)

			tryNonGreedy := !s.Greedy
			if matchLength == 1 || matchLength < s.MinNonGreedyMatch {
				tryNonGreedy = false
			}
			if i+matchLength+4 >= uint32(len(e.data)) {
				tryNonGreedy = false
			}

			if tryNonGreedy {
				if !s.SplitRuns {
					lastMatchByte := matchLength - 1
					allSame := e.data[i] == e.data[i+lastMatchByte]
					for scan := uint32(1); scan < lastMatchByte && allSame; scan++ {
						allSame = e.data[i] == e.data[i+scan]
					}
					if allSame {
						tryNonGreedy = false
					}
				}
			}

			if tryNonGreedy {
				second := e.findMatch(i+matchLength, remaining-matchLength)
				best := matchLength + second
				atLeast := best + s.MinImprovement
				choice := matchLength

				for shorter := matchLength - 1; shorter > 0; shorter-- {
					next := e.findMatch(i+shorter, remaining-shorter)
					sum := shorter + next
					if sum >= atLeast && sum > best {
						best = sum
						choice = shorter
					}
				}

				if choice < matchLength {
					matchLength = choice
					numNonGreedy++
				}
			}

			if dictSize < e.maxDictCap {
				threshold := dictSize - 1
				if isPowerOfTwo(threshold) && codeSize < e.maxCodeBits {
					codeSize++
					if !e.isGIF && threshold == 256 {
						codeSize--
					}
				}
			}

			code := e.addCode(i, matchLength, &dictSize)
			if emit {
				writer.WriteBits(uint32(code), codeSize)
			}

			numBits += uint32(codeSize)
			numTokens++
		}

		matchLength--

		if s.ReadOnlyBest {
			continue
		}

		isLastByte := i+1 == uint32(len(e.data))
		next := i + 1
		nextAligned := next
		if alignment > 1 {
			nextAligned = ceilDiv(next, alignment)
		}
		if !isLastByte && e.best[nextAligned].totalBits == 0 {
			continue
		}

		if alignment > 1 && numBytes%alignment != 0 {
			if !isLastByte {
				continue
			}
		}

		add := uint32(codeSize)
		threshold := dictSize - 1
		if isPowerOfTwo(threshold) && codeSize < e.maxCodeBits {
			add++
		}

		if !e.isGIF {
			if !isLastByte && codeSize < 16 {
				continue
			}
			if isLastByte {
				add = 0
			}
			if numBits%8 != 0 {
				add += 8 - numBits%8
			}
			if !isLastByte {
				tokensPlusClear := numTokens + 1
				mod8 := tokensPlusClear & 7
				gap := uint32(0)
				if mod8 != 0 {
					gap = 8 - mod8
				}
				add += uint32(codeSize) * gap
			}
		}

		isPartial := matchLength > 0
		trueBits := numBits + add
		totalBits := uint64(trueBits) + e.best[nextAligned].totalBits

		bb := &e.best[fromAligned]
		if bb.totalBits == 0 || bb.totalBits >= totalBits {
			bb.bits = trueBits
			bb.totalBits = totalBits
			bb.length = numBytes
			bb.tokens = numTokens
			bb.partial = isPartial
			bb.nongreedy = numNonGreedy
		}
	}

	if emit {
		codeSize = getMinBits(dictSize - 1)
		if e.isGIF {
			closing := clear
			if isFinal {
				closing = endOfStream
			}
			writer.WriteBits(closing, codeSize)
		} else {
			if !isFinal {
				writer.WriteBits(clear, codeSize)
				numTokens++
			}
			writer.AlignToByte()
			if !isFinal {
				mod8 := numTokens & 7
				gap := uint32(0)
				if mod8 != 0 {
					gap = 8 - mod8
				}
				writer.WriteZeroBits(int(codeSize) * int(gap))
			}
		}
	}

	if s.Logger != nil && !s.ReadOnlyBest && e.best[fromAligned].length == 0 {
		s.Logger.Printf("optimizePartial @ %d produced no best[] entry", from)
	}

	return writer, nil
}

// Optimize runs the reverse DP scoring pass over every aligned offset,
// then reconstructs and emits along the globally optimal restart set.
func (e *Encoder) Optimize(s Settings) ([]byte, error) {
	if len(e.data) == 0 {
		return nil, newErr(ErrMisuse, -1, "empty input")
	}
	alignment := s.Alignment
	if alignment == 0 {
		return nil, newErr(ErrMisuse, -1, "alignment must be >= 1")
	}

	n := uint32(len(e.data))
	lastAligned := ((n - 1) / alignment) * alignment

	scoreSettings := s
	scoreSettings.ReadOnlyBest = false

	for i := lastAligned; ; i -= alignment {
		pass := scoreSettings
		if s.SmartGreedy {
			pass.Greedy = false
		}
		if _, err := e.OptimizePartial(i, 0, false, true, pass); err != nil {
			return nil, err
		}
		if s.SmartGreedy {
			alt := scoreSettings
			alt.Greedy = true
			if _, err := e.OptimizePartial(i, 0, false, true, alt); err != nil {
				return nil, err
			}
		}
		if i == 0 {
			break
		}
	}

	var restarts []uint32
	pos := uint32(0)
	aligned := uint32(0)
	for pos < n {
		length := e.best[aligned].length
		if length == 0 {
			return nil, newErr(ErrResourceConstraint, int64(pos), "gap between two blocks: choose a smaller alignment or increase the token limit")
		}
		pos += length
		aligned = pos / alignment
		restarts = append(restarts, pos)
	}

	return e.Merge(restarts, s)
}

// Merge emits the final packed bitstream along a caller-supplied
// restart set, without running the DP scoring pass.
func (e *Encoder) Merge(restarts []uint32, s Settings) ([]byte, error) {
	writer := bitio.NewWriter()

	if s.StartWithClearCode && e.isGIF {
		for i := uint8(0); i < s.MinCodeSize; i++ {
			writer.WriteBit(false)
		}
		writer.WriteBit(true)
	}

	if len(restarts) == 0 {
		return writer.Bytes(), nil
	}

	n := uint32(len(e.data))
	if restarts[len(restarts)-1] < n {
		restarts = append(restarts, n)
	}

	alignment := s.Alignment
	if alignment == 0 {
		alignment = 1
	}

	pos := uint32(0)
	for i, r := range restarts {
		if r == 0 {
			continue
		}
		isFinal := i == len(restarts)-1
		length := r - pos

		segSettings := s
		if e.best != nil {
			aligned := pos / alignment
			segSettings.Greedy = e.best[aligned].nongreedy == 0
			if segSettings.Greedy {
				segSettings.AvoidNonGreedyAgain = true
			}
		}
		segSettings.ReadOnlyBest = true

		block, err := e.OptimizePartial(pos, length, true, isFinal, segSettings)
		if err != nil {
			return nil, err
		}
		if (block == nil || block.Len() == 0) && length > 0 {
			return nil, newErr(ErrResourceConstraint, int64(pos), "block with length %d produced no output", length)
		}
		writer.Append(block)

		pos = r
	}

	return writer.Bytes(), nil
}
