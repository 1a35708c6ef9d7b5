// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trbnet

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/pasttrec/internal/flock"
)

func TestOpen(t *testing.T) {
	tmp, err := os.MkdirTemp("", "pasttrec-open-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmp)

	lock := filepath.Join(tmp, "bus.lock")
	msg := log.NewMsgStream("trbnet", log.LvlError, io.Discard)

	t.Run("file", func(t *testing.T) {
		var o strings.Builder
		bus, err := Open(
			WithInterface(IfaceFile), WithOutput(&o),
			WithLockFile(lock), WithMsgStream(msg), WithTrace(true),
		)
		if err != nil {
			t.Fatalf("could not open file bus: %+v", err)
		}
		defer bus.Close()

		if err := bus.Write(0x6400, 0xd411, 1); err != nil {
			t.Fatalf("could not write: %+v", err)
		}
		if got, want := o.String(), "trbcmd w 0x6400 0xd411 0x00000001\n"; got != want {
			t.Fatalf("invalid recording: got=%q, want=%q", got, want)
		}

		// the file interface never holds the bus lock.
		h, err := flock.Lock(lock)
		if err != nil {
			t.Fatalf("file interface should not lock the bus: %+v", err)
		}
		_ = h.Close()
	})

	t.Run("shell-lock", func(t *testing.T) {
		bus, err := Open(WithInterface(IfaceShell), WithLockFile(lock), WithMsgStream(msg))
		if err != nil {
			t.Fatalf("could not open shell bus: %+v", err)
		}

		_, err = Open(WithInterface(IfaceShell), WithLockFile(lock), WithMsgStream(msg))
		if !errors.Is(err, flock.ErrLocked) {
			t.Fatalf("invalid error: got=%v, want=%v", err, flock.ErrLocked)
		}

		if err := bus.Close(); err != nil {
			t.Fatalf("could not close bus: %+v", err)
		}

		bus, err = Open(WithInterface(IfaceShell), WithLockFile(lock), WithMsgStream(msg))
		if err != nil {
			t.Fatalf("could not re-open shell bus: %+v", err)
		}
		_ = bus.Close()
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv("TRBNET_INTERFACE", IfaceFile)
		cfg := newConfig()
		if got, want := cfg.iface, IfaceFile; got != want {
			t.Fatalf("invalid interface: got=%q, want=%q", got, want)
		}
	})

	t.Run("default", func(t *testing.T) {
		t.Setenv("TRBNET_INTERFACE", "")
		t.Setenv("TRBCMD", "")
		cfg := newConfig()
		want := IfaceShell
		if haveLibTrbNet {
			want = IfaceTrbNet
		}
		if got := cfg.iface; got != want {
			t.Fatalf("invalid interface: got=%q, want=%q", got, want)
		}
		if got, want := cfg.trbcmd, "trbcmd"; got != want {
			t.Fatalf("invalid trbcmd: got=%q, want=%q", got, want)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := Open(WithInterface("usb"), WithMsgStream(msg))
		if err == nil {
			t.Fatalf("expected an error")
		}
	})
}
