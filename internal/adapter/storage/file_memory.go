package storage

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/rl1809/stock-manager/internal/port"
)

// DefaultMaxPages caps a file memory at 4 GiB.
const DefaultMaxPages = 65536

var ErrMemoryLocked = errors.New("memory file is in use by another process")

// mmap is swapped in tests to simulate mapping failures.
var mmap = unix.Mmap

// FileMemory is a port.Memory mapped from a file with MAP_SHARED, so every
// write lands in the page cache of the file immediately. The file is locked
// exclusively for the lifetime of the value.
type FileMemory struct {
	mu       sync.RWMutex
	file     *os.File
	data     []byte
	maxPages uint64
}

var _ port.Memory = (*FileMemory)(nil)

// OpenFileMemory maps path, creating it when missing. The file size must be
// a whole number of pages.
func OpenFileMemory(path string, maxPages uint64) (*FileMemory, error) {
	if maxPages == 0 {
		maxPages = DefaultMaxPages
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open memory file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrMemoryLocked
		}
		return nil, fmt.Errorf("lock memory file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat memory file: %w", err)
	}
	if info.Size()%port.PageSize != 0 {
		f.Close()
		return nil, fmt.Errorf("memory file size %d is not a multiple of %d", info.Size(), port.PageSize)
	}

	m := &FileMemory{file: f, maxPages: maxPages}
	if info.Size() > 0 {
		if err := m.remap(info.Size()); err != nil {
			f.Close()
			return nil, err
		}
	}
	return m, nil
}

// remap maps the first size bytes of the file. The old mapping is released
// only once the new one exists, so a failure leaves m.data usable.
func (m *FileMemory) remap(size int64) error {
	data, err := mmap(int(m.file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			unix.Munmap(data)
			return fmt.Errorf("munmap: %w", err)
		}
	}
	m.data = data
	return nil
}

func (m *FileMemory) Size() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.data)) / port.PageSize
}

func (m *FileMemory) Grow(pages uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := uint64(len(m.data)) / port.PageSize
	if pages == 0 {
		return prev, nil
	}
	if prev+pages > m.maxPages {
		return 0, fmt.Errorf("%w: %d pages requested, limit %d", port.ErrGrowFailed, prev+pages, m.maxPages)
	}

	size := int64((prev + pages) * port.PageSize)
	if err := m.file.Truncate(size); err != nil {
		return 0, fmt.Errorf("%w: %v", port.ErrGrowFailed, err)
	}
	if err := m.remap(size); err != nil {
		if terr := m.file.Truncate(int64(len(m.data))); terr != nil {
			err = errors.Join(err, terr)
		}
		return 0, fmt.Errorf("%w: %v", port.ErrGrowFailed, err)
	}
	return prev, nil
}

func (m *FileMemory) Read(offset uint64, dst []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.check(offset, len(dst))
	copy(dst, m.data[offset:])
}

func (m *FileMemory) Write(offset uint64, src []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.check(offset, len(src))
	copy(m.data[offset:], src)
}

func (m *FileMemory) check(offset uint64, n int) {
	if end := offset + uint64(n); end > uint64(len(m.data)) || end < offset {
		panic(fmt.Sprintf("storage: access [%d, %d) out of bounds of %d bytes", offset, end, len(m.data)))
	}
}

// Sync flushes dirty pages to the file.
func (m *FileMemory) Sync() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return nil
	}
	return unix.Msync(m.data, unix.MS_SYNC)
}

// Close syncs, unmaps and unlocks the file.
func (m *FileMemory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.data != nil {
		errs = append(errs, unix.Msync(m.data, unix.MS_SYNC), unix.Munmap(m.data))
		m.data = nil
	}
	errs = append(errs, m.file.Close())
	return errors.Join(errs...)
}
