package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"flexigo/lzw"
	"flexigo/zcodec"
)

func writeZFile(t *testing.T, path string, data []byte) {
	t.Helper()
	enc := lzw.NewEncoder(data, false)
	packed, err := enc.Optimize(lzw.Settings{Alignment: 1, MinCodeSize: 8, Greedy: true})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	f := &zcodec.File{Settings: 0x80 | 16}
	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer out.Close()
	if _, err := f.WriteOptimized(out, packed); err != nil {
		t.Fatalf("WriteOptimized: %v", err)
	}
}

func TestBatchRecompressesEveryFile(t *testing.T) {
	inDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	names := []string{"a.Z", "b.Z", "c.Z"}
	for _, name := range names {
		writeZFile(t, filepath.Join(inDir, name), []byte("the quick brown fox jumps over the lazy dog, repeatedly, "+name))
	}

	app := newApp()
	args := []string{"flexigo", "batch", "--Z", "--workers", "2", inDir, outDir}
	if err := app.Run(args); err != nil {
		t.Fatalf("batch run: %v", err)
	}

	for _, name := range names {
		path := filepath.Join(outDir, name)
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
		if info.Size() == 0 {
			t.Fatalf("%s is empty", path)
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		f, err := zcodec.Decode(bytes.NewReader(raw), false, nil)
		if err != nil {
			t.Fatalf("Decode(%s): %v", name, err)
		}
		if len(f.Data) == 0 {
			t.Fatalf("%s decoded to no data", name)
		}
	}
}

func TestBatchRefusesToOverwriteWithoutForce(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	writeZFile(t, filepath.Join(inDir, "a.Z"), []byte("abcabcabcabc"))
	if err := os.WriteFile(filepath.Join(outDir, "a.Z"), []byte("existing"), 0644); err != nil {
		t.Fatalf("seed output: %v", err)
	}

	app := newApp()
	err := app.Run([]string{"flexigo", "batch", "--Z", inDir, outDir})
	if err == nil {
		t.Fatalf("expected an error when output already exists without -f")
	}
}
