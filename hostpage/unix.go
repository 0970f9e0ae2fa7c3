//go:build linux || darwin

package hostpage

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Unix is a PageHost backed by real anonymous mmap/munmap, for platforms
// where the process genuinely owns page-granular address space. RSS is
// read from /proc/self/statm on Linux; on darwin (no /proc) it falls back
// to the sum of bytes this host currently has mapped.
type Unix struct {
	mu     sync.Mutex
	mapped uint64
}

// NewUnix constructs a mmap-backed page host.
func NewUnix() *Unix {
	return &Unix{}
}

// Map reserves an anonymous, private mapping of size bytes.
func (u *Unix) Map(size uintptr) ([]byte, error) {
	if size == 0 {
		return nil, fmt.Errorf("hostpage: map size must be > 0")
	}
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("hostpage: mmap: %w", err)
	}
	u.mu.Lock()
	u.mapped += uint64(size)
	u.mu.Unlock()
	return data, nil
}

// Unmap releases a mapping obtained from Map.
func (u *Unix) Unmap(page []byte) error {
	if len(page) == 0 {
		return fmt.Errorf("hostpage: unmap called on empty page")
	}
	size := len(page)
	if err := unix.Munmap(page); err != nil {
		return fmt.Errorf("hostpage: munmap: %w", err)
	}
	u.mu.Lock()
	u.mapped -= uint64(size)
	u.mu.Unlock()
	return nil
}

// RSS reports the process's resident set size in bytes, read from
// /proc/self/statm where available. On platforms without /proc it falls
// back to the total bytes this host currently has mapped.
func (u *Unix) RSS() (uint64, error) {
	rss, err := readStatmRSS()
	if err == nil {
		return rss, nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.mapped, nil
}

func readStatmRSS() (uint64, error) {
	f, err := os.Open("/proc/self/statm")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, fmt.Errorf("hostpage: empty /proc/self/statm")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 2 {
		return 0, fmt.Errorf("hostpage: malformed /proc/self/statm")
	}
	residentPages, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("hostpage: parse /proc/self/statm: %w", err)
	}
	return residentPages * uint64(os.Getpagesize()), nil
}
