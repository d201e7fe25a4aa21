package snapshot

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// ChecksumOf returns the 64-bit digest of content. It backs the per-chunk
// checksum: deterministic, collision-resistant enough to catch accidental
// corruption, and cheap to compute.
func ChecksumOf(content []byte) uint64 {
	return xxhash.Sum64(content)
}

// directoryChecksum computes the snapshot-level checksum: a single digest
// fed the contents of every regular file in dir, in lexicographically
// sorted filename order. Files are streamed through the hash one at a time
// rather than concatenated in memory first.
func directoryChecksum(dir string) (uint64, error) {
	names, err := sortedFileNames(dir)
	if err != nil {
		return 0, err
	}

	d := xxhash.New()
	for _, name := range names {
		if err := streamFileInto(d, filepath.Join(dir, name)); err != nil {
			return 0, err
		}
	}
	return d.Sum64(), nil
}

// chunkSetChecksum computes the same snapshot-level digest directly from a
// set of already-read chunks, keyed by chunk name, without touching disk.
// Used by the sender, which has the content in memory already; the
// receiver's completion check uses directoryChecksum instead.
func chunkSetChecksum(contents map[string][]byte) uint64 {
	names := make([]string, 0, len(contents))
	for name := range contents {
		names = append(names, name)
	}
	sort.Strings(names)

	d := xxhash.New()
	for _, name := range names {
		d.Write(contents[name])
	}
	return d.Sum64()
}

func streamFileInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}

// sortedFileNames lists the regular files directly inside dir, sorted
// lexicographically by name.
func sortedFileNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
