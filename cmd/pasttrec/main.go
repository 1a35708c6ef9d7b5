// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pasttrec configures and calibrates PASTTREC front-end ASICs
// over TrbNet.
//
// Boards, cables and ASICs are selected with pattern addresses:
//
//	AAAA[:cables[:asics]]
//
// where cables and asics are comma-separated lists of 1-based indices.
//
// The TrbNet interface is selected with $TRBNET_INTERFACE (trbnet, shell
// or file).
package main // import "github.com/go-lpc/pasttrec/cmd/pasttrec"

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/pasttrec/conn"
	"github.com/go-lpc/pasttrec/etrbid"
	"github.com/go-lpc/pasttrec/spi"
	"github.com/go-lpc/pasttrec/trbnet"
	"github.com/spf13/cobra"
)

func main() {
	log.SetPrefix("pasttrec: ")
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := newApp(os.Stdout, os.Stderr).root().ExecuteContext(ctx)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

type app struct {
	stdout io.Writer
	stderr io.Writer

	verbose       int
	ignoreMissing bool
	iface         string
	delay         time.Duration

	// open opens the TrbNet bus.
	open func(a *app) (trbnet.Bus, error)
	// sleep replaces time.Sleep when set.
	sleep func(time.Duration)
	// progress builds the progress bar of long operations.
	progress func(n int, desc string) progress
	// confirm asks the operator before writing to the hardware.
	confirm func(label string) (bool, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:   stdout,
		stderr:   stderr,
		open:     openBus,
		progress: newBar,
		confirm:  confirm,
	}
}

func (a *app) root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pasttrec",
		Short:         "configure and calibrate PASTTREC front-end ASICs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	pf := cmd.PersistentFlags()
	pf.IntVarP(&a.verbose, "verbose", "v", 0, "verbose level: 0, 1, 2, 3")
	pf.BoolVar(&a.ignoreMissing, "ignore-missing", false, "skip unreachable boards")
	pf.StringVar(&a.iface, "interface", "", "TrbNet interface (trbnet, shell, file), overrides $TRBNET_INTERFACE")
	pf.DurationVar(&a.delay, "spi-delay", 0, "pause after each SPI transaction")

	cmd.AddCommand(
		a.asicReadCmd(),
		a.asicWriteCmd(),
		a.asicSetCmd(),
		a.asicResetCmd(),
		a.asicScanCmd(),
		a.tempIDCmd(),
		a.baselineScanCmd(),
		a.thresholdScanCmd(),
		a.baselineCalcCmd(),
		a.scalersCmd(),
	)
	return cmd
}

func (a *app) msg(name string) tlog.MsgStream {
	lvl := tlog.LvlWarning
	switch {
	case a.verbose >= 2:
		lvl = tlog.LvlDebug
	case a.verbose == 1:
		lvl = tlog.LvlInfo
	}
	return tlog.NewMsgStream(name, lvl, a.stderr)
}

func openBus(a *app) (trbnet.Bus, error) {
	opts := []trbnet.Option{
		trbnet.WithMsgStream(a.msg("trbnet")),
		trbnet.WithTrace(a.verbose >= 3),
		trbnet.WithOutput(a.stdout),
	}
	if a.iface != "" {
		opts = append(opts, trbnet.WithInterface(a.iface))
	}
	return trbnet.Open(opts...)
}

// session is an open bus together with its connection factory.
type session struct {
	bus trbnet.Bus
	f   *conn.Factory
}

func (a *app) connect() (*session, error) {
	bus, err := a.open(a)
	if err != nil {
		return nil, fmt.Errorf("could not open trbnet: %w", err)
	}
	var sopts []spi.Option
	if a.delay > 0 {
		sopts = append(sopts, spi.WithDelay(a.delay))
	}
	if a.sleep != nil {
		sopts = append(sopts, spi.WithSleep(a.sleep))
	}
	f := conn.NewFactory(
		bus,
		conn.WithMsgStream(a.msg("conn")),
		conn.WithSPI(sopts...),
	)
	return &session{bus: bus, f: f}, nil
}

// Close closes the bus. It is safe to call Close more than once.
func (s *session) Close() error {
	if s.bus == nil {
		return nil
	}
	bus := s.bus
	s.bus = nil
	return bus.Close()
}

func (a *app) decode(s *session, patterns []string) ([]etrbid.ETrbID, error) {
	ids, err := s.f.Decode(patterns, a.ignoreMissing)
	if err != nil {
		return nil, fmt.Errorf("could not decode addresses: %w", err)
	}
	return ids, nil
}

func (a *app) asics(s *session, patterns []string) ([]*conn.ASIC, error) {
	ids, err := a.decode(s, patterns)
	if err != nil {
		return nil, err
	}
	return s.f.ASICs(ids, a.ignoreMissing)
}

func (a *app) cables(s *session, patterns []string) ([]*conn.Cable, error) {
	ids, err := a.decode(s, patterns)
	if err != nil {
		return nil, err
	}
	return s.f.Cables(ids, a.ignoreMissing)
}

// checkPatterns rejects malformed addresses before any hardware access.
func checkPatterns(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing pattern address")
	}
	_, err := etrbid.ParseAll(args)
	return err
}

func (a *app) wait(d time.Duration) {
	if a.sleep != nil {
		a.sleep(d)
		return
	}
	time.Sleep(d)
}
