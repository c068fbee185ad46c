package main

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/urfave/cli/v2"

	"flexigo/gifcodec"
	"flexigo/lzw"
	"flexigo/ppmdump"
	"flexigo/zcodec"
)

func runRecompress(c *cli.Context) error {
	input := c.Args().Get(0)
	output := c.Args().Get(1)

	isGif := !c.Bool("Z")
	decompressZ := c.Bool("decompress")
	compressZ := c.Bool("compress")
	if decompressZ || compressZ {
		isGif = false
	}
	if len(input) > 2 && input[len(input)-2] == '.' && input[len(input)-1] == 'Z' {
		isGif = false
	}

	if c.Bool("verbose") && c.Bool("quiet") {
		return fmt.Errorf("flag -v (verbose) contradicts -q (quiet)")
	}
	if c.Bool("summary") && c.Bool("quiet") {
		return fmt.Errorf("flag -s (show summary) contradicts -q (quiet)")
	}

	if c.Bool("info") {
		return runInfo(input, isGif)
	}
	if c.Int("benchmark") > 0 {
		return runBenchmark(c, input, isGif)
	}
	if c.Int("ppm") > 0 || c.Int("indices") > 0 {
		return runDump(c, input, output)
	}

	if input == "" {
		return fmt.Errorf("missing INPUTFILE")
	}
	if output == "" {
		return fmt.Errorf("missing OUTPUTFILE")
	}
	if input == output {
		return fmt.Errorf("INPUTFILE and OUTPUTFILE cannot be the same filename")
	}
	if !c.Bool("force") {
		if _, err := os.Stat(output); err == nil {
			return fmt.Errorf("OUTPUTFILE already exists, use -f to overwrite")
		}
	}

	raw, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	if decompressZ {
		f, err := zcodec.Decode(bytes.NewReader(raw), compressZ, logger(c))
		if err != nil {
			return err
		}
		return os.WriteFile(output, f.Data, 0644)
	}

	settings, _ := settingsFromFlags(c)
	userDefined, err := parseUserDefined(c.String("userdefined"))
	if err != nil {
		return err
	}
	if d := c.Int("dictionary"); d > 0 {
		settings.MaxDict = uint32(d)
	}

	var result []byte
	if isGif {
		result, err = recompressGIF(c, raw, settings, userDefined)
	} else {
		if len(userDefined) > 0 {
			return fmt.Errorf("predefined blocks are not implemented yet for .Z files")
		}
		if settings.MaxTokens == gifMaxTokens {
			settings.MaxTokens = lzwMaxTokens
		}
		result, err = recompressZ(c, raw, settings)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(output, result, 0644); err != nil {
		return err
	}

	if c.Bool("summary") {
		printSummary(input, output, len(raw), len(result))
	}
	return nil
}

// recompressGIF mirrors flexiGIF.cpp's GIF branch: decode every frame,
// optionally de-interlace the (single) frame, then run the DP
// optimizer — or, with -u, the user-supplied block list — per frame.
func recompressGIF(c *cli.Context, raw []byte, settings lzw.Settings, userDefined []uint32) ([]byte, error) {
	img, err := gifcodec.Decode(bytes.NewReader(raw), logger(c))
	if err != nil {
		return nil, err
	}
	if len(img.Frames) == 0 {
		return nil, fmt.Errorf("no frames found in input")
	}

	if c.Bool("deinterlace") {
		if len(img.Frames) > 1 {
			return nil, &lzw.Error{Kind: lzw.ErrMisuse, Offset: -1, Msg: "de-interlacing is not supported for animated GIFs"}
		}
		if err := img.SetInterlacing(0, false); err != nil {
			return nil, err
		}
	}
	if len(img.Frames) > 1 && len(userDefined) > 0 {
		return nil, &lzw.Error{Kind: lzw.ErrMisuse, Offset: -1, Msg: "user-defined block boundaries are not allowed for animated GIFs"}
	}

	packed := make([][]byte, len(img.Frames))

	for i, frame := range img.Frames {
		s := settings
		s.MinCodeSize = frame.CodeSize

		enc := lzw.NewEncoder(frame.Pixels, true)

		var bits []byte
		var err error
		if len(userDefined) == 0 {
			printProgress(c, i+1, len(img.Frames), len(frame.Pixels))
			bits, err = enc.Optimize(s)
		} else {
			s.MaxTokens = 0
			s.MaxDict = 0
			bits, err = enc.Merge(withBounds(userDefined, uint32(len(frame.Pixels))), s)
		}
		if err != nil {
			return nil, err
		}
		packed[i] = bits
	}

	var out bytes.Buffer
	if _, err := img.WriteOptimized(&out, packed, 0); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func recompressZ(c *cli.Context, raw []byte, settings lzw.Settings) ([]byte, error) {
	f, err := zcodec.Decode(bytes.NewReader(raw), c.Bool("compress"), logger(c))
	if err != nil {
		return nil, err
	}

	settings.MinCodeSize = 8
	settings.StartWithClearCode = false
	if settings.MaxDict == 0 || settings.MaxDict == gifMaxDictionary || settings.MaxDict == gifMaxDictionaryCompatible {
		settings.MaxDict = lzwMaxDictionary
	}

	enc := lzw.NewEncoder(f.Data, false)
	bits, err := enc.Optimize(settings)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if _, err := f.WriteOptimized(&out, bits); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func printProgress(c *cli.Context, frame, numFrames, numPixels int) {
	if c.Bool("quiet") {
		return
	}
	fmt.Printf("optimizing frame %d/%d (%d pixels)...\n", frame, numFrames, numPixels)
}

func withBounds(blocks []uint32, n uint32) []uint32 {
	for len(blocks) > 0 && blocks[len(blocks)-1] > n {
		blocks = blocks[:len(blocks)-1]
	}
	if len(blocks) == 0 || blocks[0] != 0 {
		blocks = append([]uint32{0}, blocks...)
	}
	if blocks[len(blocks)-1] != n {
		blocks = append(blocks, n)
	}
	return blocks
}

func runInfo(input string, isGif bool) error {
	raw, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	stdoutLog := log.New(os.Stdout, "", 0)

	if isGif {
		img, err := gifcodec.Decode(bytes.NewReader(raw), stdoutLog)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %dx%d, %d colors, %d frame(s)\n", input, img.Width, img.Height, 1<<img.ColorDepth, len(img.Frames))
		for i, f := range img.Frames {
			fmt.Printf("  frame %d: %dx%d at (%d,%d), %d-bit codes, interlaced=%v\n",
				i, f.Width, f.Height, f.OffsetLeft, f.OffsetTop, f.CodeSize, f.IsInterlaced)
		}
		return nil
	}

	f, err := zcodec.Decode(bytes.NewReader(raw), false, stdoutLog)
	if err != nil {
		return err
	}
	fmt.Printf("%s: .Z file, max %d bits, %d decompressed bytes\n", input, f.MaxBits(), len(f.Data))
	return nil
}

func runBenchmark(c *cli.Context, input string, isGif bool) error {
	raw, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	iterations := c.Int("benchmark")

	fmt.Printf("benchmarking '%s' ...\ndecoding file, %d iterations\n", input, iterations)
	start := time.Now()

	var numPixels int64
	for i := 0; i < iterations; i++ {
		if isGif {
			img, err := gifcodec.Decode(bytes.NewReader(raw), nil)
			if err != nil {
				return err
			}
			for _, f := range img.Frames {
				numPixels += int64(len(f.Pixels))
			}
		} else {
			f, err := zcodec.Decode(bytes.NewReader(raw), false, nil)
			if err != nil {
				return err
			}
			numPixels += int64(len(f.Data))
		}
	}

	elapsed := time.Since(start).Seconds()
	throughput := float64(numPixels) / elapsed / 1e6
	fmt.Printf("elapsed:    %.6f seconds\nper file:   %.6f seconds\nthroughput: %.3f megapixel/second\n",
		elapsed, elapsed/float64(iterations), throughput)
	return nil
}

func runDump(c *cli.Context, input, output string) error {
	raw, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	img, err := gifcodec.Decode(bytes.NewReader(raw), logger(c))
	if err != nil {
		return err
	}

	frameArg := c.Int("ppm")
	wantIndices := false
	if frameArg == 0 {
		frameArg = c.Int("indices")
		wantIndices = true
	}
	frameIdx := frameArg - 1
	if frameIdx < 0 || frameIdx >= len(img.Frames) {
		return fmt.Errorf("please specify a valid frame number")
	}

	out, err := os.Create(output)
	if err != nil {
		return err
	}
	defer out.Close()

	if wantIndices {
		return ppmdump.WriteIndices(out, img, img.Frames[frameIdx])
	}
	return ppmdump.WritePPM(out, img, img.Frames[frameIdx])
}

func printSummary(input, output string, before, now int) {
	diff := before - now
	switch {
	case diff == 0:
		fmt.Printf("no optimization found for '%s', same size as before (%d bytes).\n", input, now)
	case diff > 0:
		fmt.Printf("'%s' is %d bytes smaller than '%s' (%d vs %d bytes) => you saved %.3f%%.\n",
			output, diff, input, now, before, float64(diff)*100/float64(before))
	default:
		fmt.Printf("'%s' is %d bytes larger than '%s' (%d vs %d bytes).\n", output, -diff, input, now, before)
	}

	if ratio := estimateZstdRatio(input); ratio > 0 {
		fmt.Printf("for reference, a general-purpose compressor would reach about %.1f%% of the original size.\n", ratio*100)
	}
}

// estimateZstdRatio zstd-compresses the original file purely to print
// an informational comparison line; it never touches the output GIF
// or .Z bytes produced above.
func estimateZstdRatio(input string) float64 {
	raw, err := os.ReadFile(input)
	if err != nil || len(raw) == 0 {
		return 0
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return 0
	}
	defer enc.Close()
	compressed := enc.EncodeAll(raw, nil)
	return float64(len(compressed)) / float64(len(raw))
}
