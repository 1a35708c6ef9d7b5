// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/go-lpc/pasttrec/baseline"
	"github.com/go-lpc/pasttrec/scan"
	"github.com/spf13/cobra"
)

func (a *app) baselineCalcCmd() *cobra.Command {
	var (
		output string
		dump   string
		full   string
		old    bool
		rng    bool
		exec   bool
		offset int
		vth    uint8
		gain   uint8
		ask    = true
	)
	cmd := &cobra.Command{
		Use:   "baseline-calc FILE",
		Short: "compute baselines from a baseline scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := scan.LoadFile(args[0])
			if err != nil {
				return err
			}

			policy := baseline.Mode
			if rng {
				policy = baseline.Range
			}

			opts := []baseline.Option{
				baseline.WithMsgStream(a.msg("baseline")),
				baseline.WithReport(baseline.NewReport(cmd.OutOrStdout())),
			}
			fs := cmd.Flags()
			if fs.Changed("threshold") {
				opts = append(opts, baseline.WithThreshold(vth))
			}
			if fs.Changed("gain") {
				opts = append(opts, baseline.WithGain(gain))
			}

			var offs baseline.Offsets = baseline.Fixed(offset)
			if !fs.Changed("offset") {
				term := baseline.NewTerminal(a.stderr)
				defer term.Close()
				offs = term
			}

			out, err := baseline.Calc(res, policy, offs, opts...)
			if err != nil {
				return err
			}
			if t, ok := offs.(*baseline.Terminal); ok {
				err = t.Close()
				if err != nil {
					return err
				}
			}

			if output != "" {
				err = out.WriteFile(output)
				if err != nil {
					return err
				}
			}

			err = dumpOutput(out, dump, full, old)
			if err != nil {
				return err
			}

			if !exec {
				return nil
			}
			if ask {
				ok, err := a.confirm("Write the computed baselines to the hardware")
				if err != nil {
					return fmt.Errorf("could not confirm: %w", err)
				}
				if !ok {
					return nil
				}
			}

			s, err := a.connect()
			if err != nil {
				return err
			}
			defer s.Close()

			err = baseline.Push(s.f, out, a.ignoreMissing)
			if err != nil {
				return err
			}
			return s.Close()
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&output, "output", "o", "", "output file")
	fs.StringVarP(&dump, "dump", "d", "", "dump file, baseline registers only")
	fs.StringVarP(&full, "Dump", "D", "", "dump file, all registers")
	fs.BoolVarP(&old, "old", "O", false, "dump as a trbcmd script")
	fs.BoolVar(&rng, "range", false, "use the range based baseline finder")
	fs.BoolVarP(&exec, "exec", "e", false, "write the computed configuration to the hardware")
	fs.BoolVar(&ask, "confirm", true, "ask for confirmation before writing to the hardware")
	fs.IntVarP(&offset, "offset", "b", 0, "offset added to the baselines (asked for each asic if not given)")
	fs.Uint8Var(&vth, "threshold", 0, "threshold (0-127), overrides the scan configuration")
	fs.Uint8VarP(&gain, "gain", "g", 0, "gain (0-3), overrides the scan configuration")
	cmd.MarkFlagsMutuallyExclusive("dump", "Dump")
	return cmd
}

func dumpOutput(out baseline.Output, dump, full string, old bool) error {
	var (
		fname  = dump
		format = baseline.BaselineTable
	)
	if full != "" {
		fname = full
		format = baseline.FullTable
	}
	if fname == "" {
		return nil
	}
	switch {
	case old && format == baseline.FullTable:
		format = baseline.FullScript
	case old:
		format = baseline.BaselineScript
	}

	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create dump file: %w", err)
	}
	defer f.Close()

	err = baseline.Dump(f, out, format)
	if err != nil {
		return err
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close dump file %q: %w", fname, err)
	}
	return nil
}
