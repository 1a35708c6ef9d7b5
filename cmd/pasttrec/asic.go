// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/go-lpc/pasttrec/conn"
	"github.com/go-lpc/pasttrec/hardware"
	"github.com/go-lpc/pasttrec/spi"
	"github.com/go-lpc/pasttrec/trbnet"
	"github.com/spf13/cobra"
)

var (
	yellow  = color.New(color.FgYellow).SprintfFunc()
	magenta = color.New(color.FgMagenta).SprintfFunc()
	cyan    = color.New(color.FgCyan).SprintfFunc()
	green   = color.New(color.FgGreen).SprintfFunc()
	red     = color.New(color.FgRed).SprintfFunc()
)

// asicFlags holds the ASIC configuration set from the command line.
type asicFlags struct {
	cfg      hardware.ASIC
	defaults bool
}

func (af *asicFlags) register(cmd *cobra.Command, def hardware.ASIC) {
	af.cfg = def
	fs := cmd.Flags()
	fs.Uint8Var(&af.cfg.BgInt, "source", def.BgInt, "baseline set: internally (1) or externally (0)")
	fs.Uint8VarP(&af.cfg.Gain, "gain", "K", def.Gain, "amplification: 4, 2, 1 or 0.67 mV/fC (0-3)")
	fs.Uint8Var(&af.cfg.Peaking, "peaking", def.Peaking, "peaking time: 35, 20, 15 or 10 ns (3-0)")
	fs.Uint8Var(&af.cfg.TC1C, "tc1c", def.TC1C, "tail cancellation TC1 C (0-7)")
	fs.Uint8Var(&af.cfg.TC1R, "tc1r", def.TC1R, "tail cancellation TC1 R (0-7)")
	fs.Uint8Var(&af.cfg.TC2C, "tc2c", def.TC2C, "tail cancellation TC2 C (0-7)")
	fs.Uint8Var(&af.cfg.TC2R, "tc2r", def.TC2R, "tail cancellation TC2 R (0-7)")
	fs.Uint8Var(&af.cfg.Vth, "threshold", def.Vth, "threshold (0-127)")
}

// check rejects malformed addresses and out of range register values
// before any hardware access.
func (af *asicFlags) check(cmd *cobra.Command, args []string) error {
	err := checkPatterns(cmd, args)
	if err != nil {
		return err
	}
	err = af.cfg.Validate()
	if err != nil {
		return fmt.Errorf("invalid asic configuration: %w", err)
	}
	return nil
}

func (af *asicFlags) registerDefaults(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&af.defaults, "defaults", false, "push the configuration to the ASICs before and after the scan")
}

func (a *app) asicReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "asic-read PATTERN...",
		Short:   "read the registers of PASTTREC ASICs",
		PreRunE: checkPatterns,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.connect()
			if err != nil {
				return err
			}
			defer s.Close()

			asics, err := a.asics(s, args)
			if err != nil {
				return err
			}

			regs := make([]uint8, hardware.NumRegs)
			for i := range regs {
				regs[i] = uint8(i)
			}
			dumps, err := conn.ReadASICs(asics, regs)
			if err != nil {
				return err
			}

			o := cmd.OutOrStdout()
			fmt.Fprintf(o, "   TDC  Cable  Asic   Reg#")
			for _, reg := range regs {
				fmt.Fprintf(o, "    %2d", reg)
			}
			fmt.Fprintf(o, "\n")
			for _, d := range dumps {
				fmt.Fprintf(o, "%s", yellow("%s  %5d  %4d        ", trbnet.Addr(d.ID.Board), d.ID.Cable, d.ID.ASIC))
				for _, r := range d.Regs {
					col := green
					switch {
					case r.Addr < hardware.RegVth:
						col = magenta
					case r.Addr == hardware.RegVth:
						col = cyan
					}
					fmt.Fprintf(o, "%s", col("  0x%02x", r.Value))
				}
				fmt.Fprintf(o, "\n")
			}
			return s.Close()
		},
	}
}

func parseByte(name, s string, max uint8) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	if uint8(v) > max {
		return 0, fmt.Errorf("invalid %s %d (max=%d)", name, v, max)
	}
	return uint8(v), nil
}

func (a *app) asicWriteCmd() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "asic-write REG VALUE PATTERN...",
		Short: "write a register of PASTTREC ASICs",
		Args:  cobra.MinimumNArgs(3),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return checkPatterns(cmd, args[2:])
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := parseByte("register", args[0], hardware.NumRegs-1)
			if err != nil {
				return err
			}
			val, err := parseByte("value", args[1], 0xff)
			if err != nil {
				return err
			}

			s, err := a.connect()
			if err != nil {
				return err
			}
			defer s.Close()

			asics, err := a.asics(s, args[2:])
			if err != nil {
				return err
			}
			checks, err := conn.WriteASICs(asics, []conn.Reg{{Addr: reg, Value: val}}, verify)
			if err != nil {
				return err
			}
			bad := report(cmd, checks, true)
			if bad > 0 {
				return fmt.Errorf("%d register(s) could not be verified", bad)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Done\n")
			return s.Close()
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "read back the written value")
	return cmd
}

// report prints the verified writes and returns the number of failures.
func report(cmd *cobra.Command, checks []conn.Check, all bool) int {
	o := cmd.OutOrStdout()
	bad := 0
	for _, c := range checks {
		if c.OK() {
			if all {
				fmt.Fprintf(o, "%v %s\n", c, green("OK"))
			}
			continue
		}
		bad++
		fmt.Fprintf(o, "%v %s\n", c, red("FAIL"))
	}
	return bad
}

func (a *app) asicSetCmd() *cobra.Command {
	var af asicFlags
	cmd := &cobra.Command{
		Use:     "asic-set PATTERN...",
		Short:   "push a full configuration to PASTTREC ASICs",
		PreRunE: af.check,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.connect()
			if err != nil {
				return err
			}
			defer s.Close()

			asics, err := a.asics(s, args)
			if err != nil {
				return err
			}
			err = conn.PushConfig(asics, af.cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configured %d asic(s)\n", len(asics))
			return s.Close()
		},
	}
	af.register(cmd, hardware.ScanASIC())
	return cmd
}

func (a *app) asicResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "asic-reset PATTERN...",
		Short:   "reset the PASTTREC ASICs of front-end cards",
		PreRunE: checkPatterns,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.connect()
			if err != nil {
				return err
			}
			defer s.Close()

			cables, err := a.cables(s, args)
			if err != nil {
				return err
			}
			err = conn.ResetASICs(cables)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d card(s)\n", len(cables))
			return s.Close()
		},
	}
}

func (a *app) asicScanCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "asic-scan PATTERN...",
		Short:   "test the communication with PASTTREC ASICs",
		PreRunE: checkPatterns,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.connect()
			if err != nil {
				return err
			}
			defer s.Close()

			asics, err := a.asics(s, args)
			if err != nil {
				return err
			}

			var (
				bar = a.progress(len(asics), "testing asics")
				bad = 0
				n   = 0
			)
			for _, asic := range asics {
				checks, err := conn.ScanCommunication([]*conn.ASIC{asic})
				if err != nil {
					return err
				}
				_ = bar.Add(1)
				n += len(checks)
				bad += report(cmd, checks, all)
			}
			_ = bar.Finish()

			msg := green("%d/%d checks ok", n-bad, n)
			if bad > 0 {
				msg = red("%d/%d checks ok", n-bad, n)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", msg)
			if bad > 0 {
				return fmt.Errorf("communication test failed for %d register write(s)", bad)
			}
			return s.Close()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "print successful checks too")
	return cmd
}

func (a *app) tempIDCmd() *cobra.Command {
	var temp, uid bool
	cmd := &cobra.Command{
		Use:     "tempid PATTERN...",
		Short:   "read the 1-wire temperature and identifier of front-end cards",
		PreRunE: checkPatterns,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.connect()
			if err != nil {
				return err
			}
			defer s.Close()

			cables, err := a.cables(s, args)
			if err != nil {
				return err
			}
			ws, err := conn.ReadOneWire(cables, temp, uid, a.sleep)
			if err != nil {
				return err
			}
			sort.SliceStable(ws, func(i, j int) bool {
				wi, wj := ws[i].ID, ws[j].ID
				if wi.Board != wj.Board {
					return wi.Board < wj.Board
				}
				return wi.Cable < wj.Cable
			})

			o := cmd.OutOrStdout()
			pretty := !temp && !uid
			if pretty {
				fmt.Fprintf(o, "   TDC  Cable    Temp  WireId\n")
			}
			for _, w := range ws {
				switch {
				case pretty:
					fmt.Fprintf(o, "%s %s %s\n",
						yellow("%s  %5d", trbnet.Addr(w.ID.Board), w.ID.Cable),
						magenta("%7.2f", spi.Celsius(w.Temp)),
						cyan("0x%016x", w.UID),
					)
				case temp:
					fmt.Fprintf(o, "%.2f\n", spi.Celsius(w.Temp))
				default:
					fmt.Fprintf(o, "0x%016x\n", w.UID)
				}
			}
			return s.Close()
		},
	}
	cmd.Flags().BoolVar(&temp, "temp", false, "show temperature only")
	cmd.Flags().BoolVar(&uid, "uid", false, "show 1-wire id only")
	cmd.MarkFlagsMutuallyExclusive("temp", "uid")
	return cmd
}
