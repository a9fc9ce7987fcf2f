// Package nodestore implements the on-disk node coordinate lookup table
// (all_nodes_kv) consulted by C4's way assembly. Adapted directly from the
// teacher's internal/nodeindex/mmap.go: a memory-mapped, fixed-point
// (×1e7) sparse file keyed by offset = nodeID * 8, still mmapped via raw
// syscall.Mmap rather than a wrapper package (see DESIGN.md for why
// edsrzf/mmap-go was dropped instead of adopted here).
package nodestore

import (
	"encoding/binary"
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

const (
	// Each entry: lon (int32) + lat (int32) = 8 bytes, fixed-point ×1e7.
	entrySize = 8
	// Maximum node id supported; OSM ids are well within this range.
	maxNodeID = 10_000_000_000
)

// Store is a memory-mapped node coordinate index: coordinates for nodeID
// live at offset = nodeID * entrySize, giving O(1) lookup for any id.
type Store struct {
	file   *os.File
	data   []byte
	size   int64
	writer bool
}

// New creates a new coordinate store for writing, backed by a sparse file
// at path sized for the full id range.
func New(path string) (*Store, error) {
	size := int64(maxNodeID) * entrySize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("create node store file: %w", err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate node store file: %w", err)
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap node store file: %w", err)
	}

	return &Store{file: f, data: data, size: size, writer: true}, nil
}

// Open opens an existing coordinate store for reading.
func Open(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open node store file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat node store file: %w", err)
	}
	size := info.Size()

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap node store file: %w", err)
	}

	return &Store{file: f, data: data, size: size, writer: false}, nil
}

// Put stores nodeID's coordinates. Out-of-range ids are silently ignored.
// Each value is stored with its sign bit flipped, so a written (0,0) is
// never all-zero bytes and stays distinguishable from an unwritten slot.
func (s *Store) Put(nodeID int64, lon, lat float64) {
	if nodeID < 0 || nodeID >= maxNodeID {
		return
	}
	offset := nodeID * entrySize
	lonInt := int32(lon * 1e7)
	latInt := int32(lat * 1e7)
	binary.LittleEndian.PutUint32(s.data[offset:], uint32(lonInt)^0x80000000)
	binary.LittleEndian.PutUint32(s.data[offset+4:], uint32(latInt)^0x80000000)
}

// Get retrieves nodeID's coordinates, returning ok=false if the id was
// never written (its slot still holds all-zero bytes).
func (s *Store) Get(nodeID int64) (lon, lat float64, ok bool) {
	if nodeID < 0 || nodeID >= maxNodeID {
		return 0, 0, false
	}
	offset := nodeID * entrySize
	if offset+entrySize > s.size {
		return 0, 0, false
	}
	lonRaw := binary.LittleEndian.Uint32(s.data[offset:])
	latRaw := binary.LittleEndian.Uint32(s.data[offset+4:])
	if lonRaw == 0 && latRaw == 0 {
		return 0, 0, false
	}
	lonInt := int32(lonRaw ^ 0x80000000)
	latInt := int32(latRaw ^ 0x80000000)
	return float64(lonInt) / 1e7, float64(latInt) / 1e7, true
}

// Sync flushes changes to disk via msync.
func (s *Store) Sync() error {
	if len(s.data) == 0 {
		return nil
	}
	_, _, errno := syscall.Syscall(syscall.SYS_MSYNC,
		uintptr(unsafe.Pointer(&s.data[0])),
		uintptr(len(s.data)),
		uintptr(syscall.MS_SYNC))
	if errno != 0 {
		return errno
	}
	return nil
}

// Close unmaps and closes the backing file.
func (s *Store) Close() error {
	if err := syscall.Munmap(s.data); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
