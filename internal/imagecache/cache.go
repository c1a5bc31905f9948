// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package imagecache opens executable and shared-library images found in
// an inspected target, indexes their symbol tables, and lazily loads the
// DWARF debug information associated with them. It is the only
// component permitted to mutate debug-info state after construction; a
// *Cache is safe to share across many inspections (batch mode), which
// is the whole point of having it: debug-info parsing is amortized across
// the process lifetime of the tool rather than paid once per target.
package imagecache

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Image is an opened ELF file together with the metadata needed to key
// it in the cache and to search for separate debug files.
type Image struct {
	Path    string
	BuildID string // from the .note.gnu.build-id section, if present

	file *elf.File
	size int64

	symOnce sync.Once
	syms    []elf.Symbol
	symErr  error
}

// Size returns the span of virtual addresses the image occupies when
// loaded, used by Process.ObjectAt for tie-breaking overlapping images.
func (img *Image) Size() int64 {
	return img.size
}

// Symbols returns the image's symbol table, sorted by address by the
// caller as needed. Parsing happens once per Image.
func (img *Image) Symbols() ([]elf.Symbol, error) {
	img.symOnce.Do(func() {
		img.syms, img.symErr = img.file.Symbols()
	})
	return img.syms, img.symErr
}

// ELF exposes the parsed file for collaborators (DWARF line tables,
// section lookups) that need more than the Cache façade provides.
func (img *Image) ELF() *elf.File {
	return img.file
}

// DebugInfo holds an image's resolved DWARF data. It carries no index of
// its own; lookups such as the interpreter inspector's discovery step
// walk the unit tree in Data.
type DebugInfo struct {
	Data *dwarf.Data
}

// key identifies an image's content for cache lookup: build-id when
// available, else path+mtime (so a rebuilt binary at the same path
// doesn't serve a stale cache entry).
type key struct {
	buildID string
	path    string
	mtime   int64
}

// A Cache is a process-wide, concurrency-safe store of opened images and
// their debug info, keyed by image content.
type Cache struct {
	debugDirs []string // additional search directories, from -g

	mu     sync.RWMutex
	images map[key]*Image

	sf    singleflight.Group // serializes first-time debug-info loads per key
	debug sync.Map           // *Image -> *DebugInfo, successful loads only
}

// New creates an empty cache that will search debugDirs, in order, for
// separate debug files when an image has none embedded.
func New(debugDirs []string) *Cache {
	return &Cache{
		debugDirs: debugDirs,
		images:    make(map[key]*Image),
	}
}

// Open returns the cached Image for path, parsing it on first use.
func (c *Cache) Open(path string) (*Image, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	buildID := readBuildID(f)
	k := key{buildID: buildID, path: path, mtime: st.ModTime().UnixNano()}
	if buildID != "" {
		k.path, k.mtime = "", 0
	}

	c.mu.RLock()
	img, ok := c.images[k]
	c.mu.RUnlock()
	if ok {
		f.Close()
		return img, nil
	}

	var size int64
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD {
			end := int64(p.Vaddr + p.Memsz)
			if end > size {
				size = end
			}
		}
	}
	img = &Image{Path: path, BuildID: buildID, file: f, size: size}

	c.mu.Lock()
	if existing, ok := c.images[k]; ok {
		c.mu.Unlock()
		f.Close()
		return existing, nil
	}
	c.images[k] = img
	c.mu.Unlock()
	return img, nil
}

// DebugInfo returns img's debug information, loading it (and searching
// c.debugDirs for a separate debug file when the image has none
// embedded) once and keeping the result for later calls. Concurrent
// callers for the same image block on the same load via singleflight
// rather than racing duplicate parses. A failed load is not kept, so a
// later call tries again.
func (c *Cache) DebugInfo(img *Image) (*DebugInfo, error) {
	if v, ok := c.debug.Load(img); ok {
		return v.(*DebugInfo), nil
	}
	v, err, _ := c.sf.Do(img.Path, func() (any, error) {
		d, err := img.file.DWARF()
		if err == nil {
			return &DebugInfo{Data: d}, nil
		}
		// No embedded DWARF: look for a separate debug file.
		for _, dir := range c.debugDirs {
			alt, altErr := findSeparateDebugFile(dir, img)
			if altErr != nil {
				continue
			}
			af, openErr := elf.Open(alt)
			if openErr != nil {
				continue
			}
			ad, dwarfErr := af.DWARF()
			af.Close()
			if dwarfErr != nil {
				continue
			}
			return &DebugInfo{Data: ad}, nil
		}
		return nil, fmt.Errorf("no debug info for %s: %w", img.Path, err)
	})
	if err != nil {
		return nil, err
	}
	c.debug.Store(img, v)
	return v.(*DebugInfo), nil
}

// findSeparateDebugFile searches dir for a debug file matching img, by
// build-id subdirectory convention (<dir>/.build-id/xx/yyyy.debug) or by
// <dir>/<basename>.debug. This only covers the
// common naming conventions; full GNU debuglink / build-id resolution
// is out of scope.
func findSeparateDebugFile(dir string, img *Image) (string, error) {
	if img.BuildID != "" && len(img.BuildID) > 2 {
		p := filepath.Join(dir, ".build-id", img.BuildID[:2], img.BuildID[2:]+".debug")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	p := filepath.Join(dir, filepath.Base(img.Path)+".debug")
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}
	return "", os.ErrNotExist
}

func readBuildID(f *elf.File) string {
	sec := f.Section(".note.gnu.build-id")
	if sec == nil {
		return ""
	}
	data, err := sec.Data()
	if err != nil || len(data) < 16 {
		return ""
	}
	namesz := byteOrderUint32(data[0:4])
	descsz := byteOrderUint32(data[4:8])
	off := 12 + align4(namesz)
	if off+descsz > uint32(len(data)) {
		return ""
	}
	return fmt.Sprintf("%x", data[off:off+descsz])
}

func align4(x uint32) uint32 {
	return (x + 3) &^ 3
}

func byteOrderUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
