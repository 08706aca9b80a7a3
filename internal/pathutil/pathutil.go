// Package pathutil provides path and filename helpers shared by the cache
// updater and the tag codecs: extension extraction, atomic same-directory
// rewrites, and canonical path resolution for walk-time deduplication.
package pathutil

import (
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/yookoala/realpath"
)

// Ext returns the filename extension, lowercased, without the leading dot.
// It differs from filepath.Ext in returning "" rather than "." for
// extension-less names, matching how the codec registry dispatches.
func Ext(path string) string {
	e := filepath.Ext(path)
	if e == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(e, "."))
}

// StripExt returns path without its final extension, leading dot included
// in what is stripped.
func StripExt(path string) string {
	e := filepath.Ext(path)
	if e == "" {
		return path
	}
	return path[:len(path)-len(e)]
}

// Canonical resolves path through symlinks for use as a stable dedup/lock
// key during directory walks. It falls back to the cleaned input path if
// the filesystem entry cannot be resolved (e.g. it vanished mid-walk).
func Canonical(path string) string {
	rp, err := realpath.Realpath(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return rp
}

var randMu sync.Mutex
var randState uint32

func nextSuffix() string {
	randMu.Lock()
	if randState == 0 {
		randState = uint32(rand.Int31()) | 1
	}
	randState = randState*1664525 + 1013904223
	r := randState
	randMu.Unlock()
	return strconv.Itoa(int(1e9 + r%1e9))[1:]
}

// AtomicWrite writes data to a temp file in the same directory as path,
// then renames it over path. This avoids leaving a half-written file in
// place if the process is interrupted mid-write, which matters because an
// unparsable datafile is read back as defaults, losing its stored values.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	var f *os.File
	var err error
	for i := 0; i < 100; i++ {
		name := filepath.Join(dir, ".tmp-"+nextSuffix())
		f, err = os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return err
		}
		break
	}
	if err != nil {
		return err
	}
	tmpName := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpName)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// CopyFile copies src to dst, which must not yet exist.
func CopyFile(dst, src string) error {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sf.Close()

	st, err := sf.Stat()
	if err != nil {
		return err
	}

	df, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, st.Mode())
	if err != nil {
		return err
	}
	defer df.Close()

	_, err = io.Copy(df, sf)
	return err
}

// WithCollisionSuffix finds the first name of the form base, "base [2]",
// "base [3]", ... (applied before any extension) that does not exist in
// dir, trying up to maxTries candidates and truncating base to fit
// maxBytes when a suffix would overflow it.
func WithCollisionSuffix(dir, base, ext string, maxBytes, maxTries int) (string, bool) {
	try := func(candidate string) string {
		if ext != "" {
			candidate += "." + ext
		}
		return candidate
	}

	full := try(base)
	if fits(full, maxBytes) {
		if _, err := os.Lstat(filepath.Join(dir, full)); os.IsNotExist(err) {
			return full, true
		}
	}

	for n := 2; n <= maxTries; n++ {
		suffix := " [" + strconv.Itoa(n) + "]"
		b := base
		candidate := try(b + suffix)
		for !fits(candidate, maxBytes) && len(b) > 0 {
			b = b[:len(b)-1]
			candidate = try(b + suffix)
		}
		if !fits(candidate, maxBytes) {
			return "", false
		}
		if _, err := os.Lstat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate, true
		}
	}
	return "", false
}

func fits(s string, maxBytes int) bool {
	return maxBytes <= 0 || len(s) <= maxBytes
}
