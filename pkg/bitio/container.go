// Package bitio exposes a byte-granular, random-access view over a
// container file with bounds-checked reads, plus a composed writer that
// stitches together verbatim-copied byte ranges and freshly built literal
// bytes without buffering the whole output in memory.
//
// The bit-level helpers (Exp-Golomb, fixed-width fields) used by the
// frame classifier delegate to github.com/icza/bitio, the same library
// the teacher corpus uses for its own H.264 SPS parsing.
package bitio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"syscall"

	"datamosh/pkg/container"
)

// Container owns the raw byte buffer of an opened source file. FrameIndex
// entries produced against a Container only borrow offset/length ranges
// into this buffer; their lifetime is bounded by the Container's.
type Container struct {
	path string
	file *os.File
	kind container.Kind

	// buf is the mapped (or fully loaded) file contents. Every
	// OpenStrategy ends up populating it one way or another: Open falls
	// back to a full load if mmap itself fails (see below).
	buf    []byte
	mapped bool
}

// minHeaderSize is the smallest a container file can be and still
// plausibly hold a RIFF or Annex-B header.
const minHeaderSize = 12

// OpenStrategy selects how the source bytes are made available.
type OpenStrategy int

// Supported open strategies.
const (
	// StrategyMmap memory-maps the file; ReadRange is effectively free.
	StrategyMmap OpenStrategy = iota
	// StrategyLoad reads the whole file into a heap buffer.
	StrategyLoad
)

// Open opens path for reading and makes its bytes available according to
// strategy. The caller must call Close when done.
func Open(path string, kind container.Kind, strategy OpenStrategy) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", container.ErrIoFailure, path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", container.ErrIoFailure, path, err)
	}
	if info.Size() < minHeaderSize {
		f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes", container.ErrTooSmall, path, info.Size())
	}

	c := &Container{path: path, file: f, kind: kind}

	switch strategy {
	case StrategyMmap:
		buf, err := syscall.Mmap(int(f.Fd()), 0, int(info.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
		if err != nil {
			// Fall back to a full load; mmap can fail on some filesystems
			// (e.g. tmpfs overlays, certain network mounts).
			buf, err2 := loadAll(f, info.Size())
			if err2 != nil {
				f.Close()
				return nil, err2
			}
			c.buf = buf
			return c, nil
		}
		c.buf = buf
		c.mapped = true
	case StrategyLoad:
		buf, err := loadAll(f, info.Size())
		if err != nil {
			f.Close()
			return nil, err
		}
		c.buf = buf
	}

	return c, nil
}

func loadAll(f *os.File, size int64) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", container.ErrIoFailure, f.Name(), err)
	}
	return buf, nil
}

// Close releases the Container's resources. Any FrameIndex borrowed from
// this Container must not be used after Close.
func (c *Container) Close() error {
	if c.mapped {
		if err := syscall.Munmap(c.buf); err != nil {
			c.file.Close()
			return fmt.Errorf("%w: munmap %s: %v", container.ErrIoFailure, c.path, err)
		}
	}
	return c.file.Close()
}

// Kind reports the container format this file was opened as.
func (c *Container) Kind() container.Kind { return c.kind }

// Bytes returns the full buffered contents. The returned slice aliases
// the Container's buffer; callers must not retain it past Close.
func (c *Container) Bytes() []byte { return c.buf }

// Size returns the total buffered size in bytes.
func (c *Container) Size() int64 { return int64(len(c.buf)) }

// ReadRange returns a bounds-checked view into the buffer. The returned
// slice aliases the Container's buffer; callers must not retain it past
// Close.
func (c *Container) ReadRange(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > int64(len(c.buf)) {
		return nil, fmt.Errorf("%w: range [%d, %d) outside buffer of length %d",
			container.ErrRangeError, offset, offset+length, len(c.buf))
	}
	return c.buf[offset : offset+length], nil
}

// Chunk is one emission in a composed write: either a verbatim byte range
// copied from the source Container, or freshly constructed literal bytes.
type Chunk struct {
	// CopyRange, used when Bytes is nil, copies [SrcOffset,
	// SrcOffset+Length) from the source Container.
	SrcOffset int64
	Length    int64

	// Literal bytes, used instead of a copy range when Bytes is non-nil.
	Bytes []byte
}

// IsLiteral reports whether this chunk carries fresh bytes rather than a
// copy range.
func (ch Chunk) IsLiteral() bool { return ch.Bytes != nil }

// WriteComposed concatenates chunks into outPath via a single buffered
// output stream, with no intermediate full-file buffering. It writes to a
// temporary file in the same directory and renames into place only on
// full success, so a failed or canceled write never leaves a partial
// output on disk (SPEC_FULL.md §7).
func WriteComposed(src *Container, outPath string, chunks []Chunk) (err error) {
	tmp, err := os.CreateTemp(dirOf(outPath), ".mosh-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp output: %v", container.ErrIoFailure, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpPath) //nolint:errcheck
		}
	}()

	w := bufio.NewWriterSize(tmp, 1<<20)
	for _, ch := range chunks {
		if ch.IsLiteral() {
			if _, werr := w.Write(ch.Bytes); werr != nil {
				tmp.Close()
				return fmt.Errorf("%w: write literal: %v", container.ErrIoFailure, werr)
			}
			continue
		}

		b, rerr := src.ReadRange(ch.SrcOffset, ch.Length)
		if rerr != nil {
			tmp.Close()
			return rerr
		}
		if _, werr := w.Write(b); werr != nil {
			tmp.Close()
			return fmt.Errorf("%w: write copy range: %v", container.ErrIoFailure, werr)
		}
	}

	if ferr := w.Flush(); ferr != nil {
		tmp.Close()
		return fmt.Errorf("%w: flush: %v", container.ErrIoFailure, ferr)
	}
	if cerr := tmp.Close(); cerr != nil {
		return fmt.Errorf("%w: close temp output: %v", container.ErrIoFailure, cerr)
	}
	if rerr := os.Rename(tmpPath, outPath); rerr != nil {
		return fmt.Errorf("%w: rename into place: %v", container.ErrIoFailure, rerr)
	}
	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
