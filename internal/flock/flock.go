// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flock provides advisory, exclusive file locks.
package flock // import "github.com/go-lpc/pasttrec/internal/flock"

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

var (
	// ErrLocked is returned when the lock is already held elsewhere.
	ErrLocked = errors.New("flock: already locked")
)

// Handle holds an exclusive lock on a file.
type Handle struct {
	f *os.File
}

// Lock acquires an exclusive, non-blocking lock on the named file,
// creating it if needed.
func Lock(name string) (*Handle, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("flock: could not open lock file %q: %w", name, err)
	}

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("flock: could not lock %q: %w", name, ErrLocked)
		}
		return nil, fmt.Errorf("flock: could not lock %q: %w", name, err)
	}

	// record the owner, for operators hunting a stale process.
	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())

	h := &Handle{f: f}
	runtime.SetFinalizer(h, (*Handle).Close)
	return h, nil
}

// Name returns the name of the locked file.
func (h *Handle) Name() string {
	if h == nil || h.f == nil {
		return ""
	}
	return h.f.Name()
}

// Close releases the lock.
func (h *Handle) Close() error {
	if h == nil {
		return os.ErrInvalid
	}

	if h.f == nil {
		return nil
	}
	f := h.f
	h.f = nil
	runtime.SetFinalizer(h, nil)

	err := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("flock: could not unlock %q: %w", f.Name(), err)
	}
	return f.Close()
}
