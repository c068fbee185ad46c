package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/urfave/cli/v2"

	"flexigo/internal/jobcache"
)

// batchCommand recompresses every file in a directory concurrently,
// one worker per file up to GOMAXPROCS, grounded on the teacher's
// striped-worker-pool pattern (codec.go's extractYCbCr*Stripe family):
// a bounded set of goroutines drains a fixed work list, each one
// carrying no shared mutable state with the others. Unlike the
// teacher's row stripes, the unit of work here is a whole file — each
// worker constructs its own lzw.Encoder/Decoder, so §5's
// single-threaded-core guarantee holds per file even though the batch
// as a whole is parallel.
func batchCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "recompress every GIF/.Z file in INPUTDIR into OUTPUTDIR",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "overwrite files already present in OUTPUTDIR"},
			&cli.BoolFlag{Name: "Z", Usage: "treat every input as a .Z file instead of .gif"},
			&cli.IntFlag{Name: "workers", Usage: "number of concurrent files to process (0 means GOMAXPROCS)"},
			&cli.IntFlag{Name: "cache-entries", Value: 64, Usage: "skip re-optimizing a file whose contents were already seen this run"},
		},
		Action: runBatch,
	}
}

type batchResult struct {
	path string
	err  error
}

func runBatch(c *cli.Context) error {
	inDir := c.Args().Get(0)
	outDir := c.Args().Get(1)
	if inDir == "" || outDir == "" {
		return fmt.Errorf("usage: flexigo batch INPUTDIR OUTPUTDIR")
	}

	entries, err := os.ReadDir(inDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}

	cache, err := jobcache.New(c.Int("cache-entries"))
	if err != nil {
		return err
	}

	workers := c.Int("workers")
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(names) {
		workers = len(names)
	}
	if workers < 1 {
		return nil
	}

	jobs := make(chan string, len(names))
	results := make(chan batchResult, len(names))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go batchWorker(c, inDir, outDir, cache, jobs, results, &wg)
	}
	for _, name := range names {
		jobs <- name
	}
	close(jobs)
	wg.Wait()
	close(results)

	var failed int
	for r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "flexigo batch: %s: %v\n", r.path, r.err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to recompress", failed, len(names))
	}
	return nil
}

func batchWorker(c *cli.Context, inDir, outDir string, cache *jobcache.Cache, jobs <-chan string, results chan<- batchResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for name := range jobs {
		in := filepath.Join(inDir, name)
		out := filepath.Join(outDir, name)
		results <- batchResult{path: in, err: recompressOne(c, cache, in, out)}
	}
}

// recompressOne runs the same pipeline as the single-file Action, on
// its own independent lzw.Encoder/Decoder — no state is shared across
// concurrent calls. cache is a plain lookup keyed by content hash: a
// miss always falls through to the real pipeline below, so it can
// never change which bytes land in output.
func recompressOne(c *cli.Context, cache *jobcache.Cache, input, output string) error {
	if !c.Bool("force") {
		if _, err := os.Stat(output); err == nil {
			return fmt.Errorf("%s already exists, use -f to overwrite", output)
		}
	}

	raw, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	isGif := !c.Bool("Z")
	fingerprint := "gif"
	if !isGif {
		fingerprint = "z"
	}
	key := jobcache.Key(raw, fingerprint)
	if cached, ok := cache.Get(key); ok {
		return os.WriteFile(output, cached.Output, 0644)
	}

	settings, _ := settingsFromFlags(c)
	if d := c.Int("dictionary"); d > 0 {
		settings.MaxDict = uint32(d)
	}

	var result []byte
	if isGif {
		result, err = recompressGIF(c, raw, settings, nil)
	} else {
		if settings.MaxTokens == gifMaxTokens {
			settings.MaxTokens = lzwMaxTokens
		}
		result, err = recompressZ(c, raw, settings)
	}
	if err != nil {
		return err
	}

	cache.Put(key, jobcache.Result{Output: result, OriginalBytes: len(raw), OptimizedBytes: len(result)})
	return os.WriteFile(output, result, 0644)
}
