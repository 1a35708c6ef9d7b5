// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trbnet

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/pasttrec/internal/flock"
)

// Names of the available TrbNet interfaces.
const (
	IfaceTrbNet = "trbnet" // libtrbnet binding
	IfaceShell  = "shell"  // trbcmd subprocesses
	IfaceFile   = "file"   // record trbcmd commands
)

type config struct {
	iface  string
	trbcmd string
	out    io.Writer
	lock   string
	msg    log.MsgStream
	trace  bool
}

func newConfig() config {
	cfg := config{
		iface:  os.Getenv("TRBNET_INTERFACE"),
		trbcmd: os.Getenv("TRBCMD"),
		out:    os.Stdout,
		lock:   os.Getenv("PASTTREC_LOCK"),
	}
	if cfg.iface == "" {
		cfg.iface = IfaceShell
		if haveLibTrbNet {
			cfg.iface = IfaceTrbNet
		}
	}
	if cfg.trbcmd == "" {
		cfg.trbcmd = "trbcmd"
	}
	if cfg.lock == "" {
		cfg.lock = filepath.Join(os.TempDir(), "pasttrec-trbnet.lock")
	}
	return cfg
}

// Option configures how a Bus is opened.
type Option func(*config)

// WithInterface selects the TrbNet interface, overriding $TRBNET_INTERFACE.
func WithInterface(name string) Option {
	return func(cfg *config) {
		cfg.iface = name
	}
}

// WithTrbCmd sets the path to the trbcmd executable used by the shell interface.
func WithTrbCmd(exe string) Option {
	return func(cfg *config) {
		cfg.trbcmd = exe
	}
}

// WithOutput sets where the file interface records commands.
func WithOutput(w io.Writer) Option {
	return func(cfg *config) {
		cfg.out = w
	}
}

// WithLockFile sets the lock file guarding exclusive access to the bus.
// An empty name disables locking.
func WithLockFile(name string) Option {
	return func(cfg *config) {
		cfg.lock = name
	}
}

// WithMsgStream sets the message stream used to report bus activity.
func WithMsgStream(msg log.MsgStream) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithTrace enables tracing of every bus transaction at debug level.
func WithTrace(v bool) Option {
	return func(cfg *config) {
		cfg.trace = v
	}
}

// Open opens the TrbNet interface selected by the TRBNET_INTERFACE
// environment variable or the WithInterface option.
func Open(opts ...Option) (Bus, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.msg == nil {
		cfg.msg = log.NewMsgStream("trbnet", log.LvlInfo, os.Stderr)
	}

	var (
		bus Bus
		err error
	)
	switch cfg.iface {
	case IfaceTrbNet:
		cfg.msg.Debugf(
			"libtrbnet: LIBTRBNET=%q DAQOPSERVER=%q",
			os.Getenv("LIBTRBNET"), os.Getenv("DAQOPSERVER"),
		)
		bus, err = newLibTrbNet()
		if err != nil {
			return nil, err
		}
	case IfaceShell:
		bus = NewShell(cfg.trbcmd)
	case IfaceFile:
		bus = NewFile(cfg.out)
	default:
		return nil, fmt.Errorf("trbnet: invalid interface %q", cfg.iface)
	}

	if cfg.iface != IfaceFile && cfg.lock != "" {
		h, err := flock.Lock(cfg.lock)
		if err != nil {
			_ = bus.Close()
			return nil, fmt.Errorf("trbnet: could not acquire bus: %w", err)
		}
		bus = &lockedBus{Bus: bus, h: h}
	}

	if cfg.trace {
		bus = Trace(bus, cfg.msg)
	}

	return bus, nil
}

// lockedBus holds the bus lock for the lifetime of the underlying bus.
type lockedBus struct {
	Bus
	h *flock.Handle
}

func (bus *lockedBus) Close() error {
	err := bus.Bus.Close()
	if e := bus.h.Close(); e != nil && err == nil {
		err = e
	}
	return err
}
