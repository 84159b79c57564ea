package index

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/poiesic/semindex/core"
)

// On-disk layout:
//
//	<dir>/CURRENT                 name of the committed generation
//	<dir>/gen-000042/vectors.bin  vector collection
//	<dir>/gen-000042/metadata.jsonl
//	<dir>/gen-000042/index.flat   search structure
//
// A generation becomes visible only when CURRENT is swapped to name it.
const (
	CurrentFile   = "CURRENT"
	VectorsFile   = "vectors.bin"
	MetadataFile  = "metadata.jsonl"
	FlatIndexFile = "index.flat"

	generationPrefix = "gen-"
)

var generationPattern = regexp.MustCompile(`^gen-[0-9]{6,}$`)

// artifactFiles are the files a generation must hold to be a valid store.
var artifactFiles = []string{VectorsFile, MetadataFile, FlatIndexFile}

// errIncomplete marks a generation with a missing artifact.
var errIncomplete = errors.New("incomplete generation")

func generationName(n int) string {
	return fmt.Sprintf("%s%06d", generationPrefix, n)
}

func generationNumber(name string) (int, bool) {
	if !generationPattern.MatchString(name) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, generationPrefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// CurrentGeneration returns the name of the committed generation in dir.
// It returns an error satisfying errors.Is(err, fs.ErrNotExist) when no
// generation has ever been committed.
func CurrentGeneration(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, CurrentFile))
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(string(data))
	if _, ok := generationNumber(name); !ok {
		return "", fmt.Errorf("%w: bad %s pointer %q", core.ErrCorruptStore, CurrentFile, name)
	}
	return name, nil
}

// listGenerations returns the generation directory names in dir, oldest first.
func listGenerations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if _, ok := generationNumber(e.Name()); ok && e.IsDir() {
			names = append(names, e.Name())
		}
	}
	slices.SortFunc(names, func(a, b string) int {
		na, _ := generationNumber(a)
		nb, _ := generationNumber(b)
		return na - nb
	})
	return names, nil
}

// nextGeneration picks a name newer than every generation directory present,
// committed or not, so a leftover from an interrupted persist is never reused.
func nextGeneration(dir string) (string, error) {
	names, err := listGenerations(dir)
	if err != nil {
		return "", err
	}
	next := 1
	if len(names) > 0 {
		last, _ := generationNumber(names[len(names)-1])
		next = last + 1
	}
	return generationName(next), nil
}

// checkArtifacts reports errIncomplete naming the first missing artifact.
func checkArtifacts(genDir string) error {
	for _, name := range artifactFiles {
		if _, err := os.Stat(filepath.Join(genDir, name)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %s missing", errIncomplete, name)
			}
			return err
		}
	}
	return nil
}

// writeFileAtomic writes data to a temp file beside path, syncs it and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// syncDir flushes directory entries so renames survive a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// ensureDir creates dir if needed and rejects non-directories.
func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return os.MkdirAll(dir, 0755)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
