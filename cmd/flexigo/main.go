// Command flexigo recompresses the LZW payload of a GIF or Unix
// compress .Z file without touching a single decoded pixel. It is the
// CLI front end for flexigo/lzw, flexigo/gifcodec and flexigo/zcodec.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"flexigo/lzw"
)

const version = "2026.1"

const (
	gifMaxTokens               = 20000
	lzwMaxTokens               = 100000
	gifMaxDictionary           = 4096
	lzwMaxDictionary           = 65536
	gifMaxDictionaryCompatible = gifMaxDictionary - 3
	defaultAlignment           = 1
	defaultMinImprovement      = 1
	defaultMinNonGreedy        = 2
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	// The built-in version flag claims -v by default; -v belongs to --verbose.
	cli.VersionFlag = &cli.BoolFlag{Name: "version", Usage: "print the version"}
	return &cli.App{
		Name:    "flexigo",
		Usage:   "lossless LZW recompression for GIF and .Z files",
		Version: version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "info", Aliases: []string{"i"}, Usage: "analyze internal structure of INPUTFILE, write nothing"},
			&cli.BoolFlag{Name: "summary", Aliases: []string{"s"}, Usage: "compare filesize of INPUTFILE and OUTPUTFILE when finished"},
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "overwrite OUTPUTFILE if it already exists"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "show debug messages"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "no output during compression"},
			&cli.BoolFlag{Name: "greedy", Aliases: []string{"g"}, Usage: "enable greedy match search (default)"},
			&cli.BoolFlag{Name: "splitruns", Aliases: []string{"r"}, Usage: "allow partial matching of long runs of the same byte (requires -n)"},
			&cli.BoolFlag{Name: "deinterlace", Aliases: []string{"l"}, Usage: "ensure output is not interlaced"},
			&cli.BoolFlag{Name: "prettygood", Aliases: []string{"p"}, Usage: "smart two-pass greedy/non-greedy search, typically the best results"},
			&cli.BoolFlag{Name: "compatible", Aliases: []string{"c"}, Usage: "cap the dictionary for better compatibility with faulty decoders"},
			&cli.BoolFlag{Name: "immediately", Aliases: []string{"y"}, Usage: "skip the initial clear code (GIF only)"},
			&cli.BoolFlag{Name: "Z", Usage: "INPUTFILE/OUTPUTFILE are .Z files instead of .gif"},
			&cli.BoolFlag{Name: "decompress", Usage: "store INPUTFILE's decompressed contents in OUTPUTFILE (implies -Z)"},
			&cli.BoolFlag{Name: "compress", Usage: "INPUTFILE is raw, OUTPUTFILE will be a .Z file"},
			&cli.IntFlag{Name: "alignment", Aliases: []string{"a"}, Value: defaultAlignment, Usage: "DP block boundaries are multiples of this"},
			&cli.IntFlag{Name: "dictionary", Aliases: []string{"d"}, Value: 0, Usage: "maximum LZW dictionary size (0 means format maximum)"},
			&cli.IntFlag{Name: "maxtokens", Aliases: []string{"t"}, Value: 0, Usage: "maximum number of tokens per block (0 means unlimited)"},
			&cli.IntFlag{Name: "minimprovement", Aliases: []string{"m"}, Value: defaultMinImprovement, Usage: "minimum bytes saved for a non-greedy match to be used"},
			&cli.IntFlag{Name: "nongreedy", Aliases: []string{"n"}, Value: 0, Usage: "enable non-greedy search, value is the minimum match length"},
			&cli.StringFlag{Name: "userdefined", Aliases: []string{"u"}, Usage: "skip the search, use this ascending comma-separated list of block boundaries"},
			&cli.IntFlag{Name: "benchmark", Aliases: []string{"b"}, Value: 0, Usage: "decode INPUTFILE this many times and report throughput"},
			&cli.IntFlag{Name: "ppm", Value: 0, Usage: "dump the N-th frame of INPUTFILE as PPM to OUTPUTFILE"},
			&cli.IntFlag{Name: "indices", Value: 0, Usage: "dump the N-th frame's raw indices to OUTPUTFILE"},
		},
		Action: runRecompress,
		Commands: []*cli.Command{
			serveCommand(),
			batchCommand(),
		},
	}
}

func logger(c *cli.Context) lzw.Logger {
	if !c.Bool("verbose") {
		return nil
	}
	return log.New(os.Stderr, "[flexigo] ", log.LstdFlags)
}

// settingsFromFlags builds an lzw.Settings from the CLI flags,
// mirroring flexiGIF.cpp's parameter table 1:1 (§11).
func settingsFromFlags(c *cli.Context) (lzw.Settings, bool /* smartGreedy */) {
	s := lzw.Settings{
		Alignment:          uint32(c.Int("alignment")),
		Greedy:             true,
		MinImprovement:     uint32(c.Int("minimprovement")),
		MinNonGreedyMatch:  defaultMinNonGreedy,
		MaxTokens:          uint32(c.Int("maxtokens")),
		StartWithClearCode: !c.Bool("immediately"),
		Logger:             logger(c),
	}

	smartGreedy := false

	if c.IsSet("nongreedy") || c.Int("nongreedy") > 0 {
		s.Greedy = false
		s.MinNonGreedyMatch = uint32(c.Int("nongreedy"))
	}
	if c.Bool("splitruns") {
		s.SplitRuns = true
	}
	if c.Bool("prettygood") {
		smartGreedy = true
		s.Greedy = false
		s.MinImprovement = defaultMinImprovement
		s.MaxDict = gifMaxDictionary
		s.MaxTokens = gifMaxTokens
		s.AvoidNonGreedyAgain = true
		s.SmartGreedy = true
	}
	if c.Bool("compatible") {
		s.MaxDict = gifMaxDictionaryCompatible
		s.Greedy = true
		s.StartWithClearCode = true
	}
	if c.Bool("greedy") {
		s.Greedy = true
	}

	return s, smartGreedy
}

func parseUserDefined(raw string) ([]uint32, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	blocks := make([]uint32, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid syntax for --userdefined: %q is not a non-negative integer", p)
		}
		blocks = append(blocks, uint32(n))
	}
	for i := 1; i < len(blocks); i++ {
		if blocks[i-1] >= blocks[i] {
			return nil, fmt.Errorf("--userdefined must be a strictly ascending list of numbers")
		}
	}
	return blocks, nil
}
