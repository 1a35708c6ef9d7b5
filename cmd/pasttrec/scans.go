// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-lpc/pasttrec/conn"
	"github.com/go-lpc/pasttrec/etrbid"
	"github.com/go-lpc/pasttrec/hardware"
	"github.com/go-lpc/pasttrec/scan"
	"github.com/spf13/cobra"
)

// scanFlags are the flags shared by the scan commands.
type scanFlags struct {
	asicFlags
	settle  time.Duration
	output  string
	split   bool
	cardIDs bool
}

func (sf *scanFlags) register(cmd *cobra.Command) {
	sf.asicFlags.register(cmd, hardware.ScanASIC())
	sf.registerDefaults(cmd)
	fs := cmd.Flags()
	fs.DurationVarP(&sf.settle, "time", "t", 1*time.Second, "measurement window of each step")
	fs.StringVarP(&sf.output, "output", "o", "result.json", "output file")
	fs.BoolVar(&sf.split, "split", false, "write one output file per board, named after the output file")
	fs.BoolVar(&sf.cardIDs, "card-ids", false, "key results by the 1-wire id of the cards")
}

type scanFunc func(ctx context.Context, e *scan.Engine, asics []*conn.ASIC) (scan.Result, error)

// runScan runs a scan on the ASICs matched by patterns. With --defaults,
// push is written to the ASICs before and after the scan.
func (a *app) runScan(cmd *cobra.Command, patterns []string, sf *scanFlags, push hardware.ASIC, steps int, desc string, run scanFunc) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := a.connect()
	if err != nil {
		return err
	}
	defer s.Close()

	asics, err := a.asics(s, patterns)
	if err != nil {
		return err
	}
	if len(asics) == 0 {
		return fmt.Errorf("no asic to scan")
	}

	bar := a.progress(steps, desc)
	opts := []scan.Option{
		scan.WithMsgStream(a.msg("scan")),
		scan.WithSettle(sf.settle),
		scan.WithProgress(bar),
	}
	if a.sleep != nil {
		opts = append(opts, scan.WithSleep(a.sleep))
	}
	if sf.cardIDs {
		ids, err := a.cardIDs(s, asics)
		if err != nil {
			return err
		}
		opts = append(opts, scan.WithCardIDs(ids))
	}

	if sf.defaults {
		err = conn.PushConfig(asics, push)
		if err != nil {
			return err
		}
	}

	res, err := run(ctx, scan.New(s.bus, opts...), asics)
	if err != nil {
		return err
	}
	_ = bar.Finish()

	if sf.defaults {
		err = conn.PushConfig(asics, push)
		if err != nil {
			return err
		}
	}

	err = a.writeResult(ctx, cmd, res, sf)
	if err != nil {
		return err
	}
	return s.Close()
}

func (a *app) cardIDs(s *session, asics []*conn.ASIC) (map[etrbid.CTrbID]uint64, error) {
	ids := make([]etrbid.ETrbID, len(asics))
	for i, asic := range asics {
		ids[i] = asic.ID()
	}
	cables, err := s.f.Cables(ids, a.ignoreMissing)
	if err != nil {
		return nil, err
	}
	ws, err := conn.ReadOneWire(cables, false, true, a.sleep)
	if err != nil {
		return nil, err
	}
	out := make(map[etrbid.CTrbID]uint64, len(ws))
	for _, w := range ws {
		out[w.ID] = w.UID
	}
	return out, nil
}

func (a *app) writeResult(ctx context.Context, cmd *cobra.Command, res scan.Result, sf *scanFlags) error {
	o := cmd.OutOrStdout()
	if !sf.split {
		err := res.WriteFile(sf.output)
		if err != nil {
			return err
		}
		fmt.Fprintf(o, "scan result written to %s\n", sf.output)
		return nil
	}

	var (
		dir    = filepath.Dir(sf.output)
		prefix = strings.TrimSuffix(filepath.Base(sf.output), filepath.Ext(sf.output))
	)
	names, err := res.WriteFiles(ctx, dir, prefix)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintf(o, "scan result written to %s\n", name)
	}
	return nil
}

func (a *app) baselineScanCmd() *cobra.Command {
	var (
		sf   scanFlags
		mode string
		m    scan.Mode
	)
	cmd := &cobra.Command{
		Use:   "baseline-scan PATTERN...",
		Short: "scan the baselines of PASTTREC ASICs",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			err := sf.check(cmd, args)
			if err != nil {
				return err
			}
			m, err = scan.ParseMode(mode)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			push := sf.cfg
			for i := range push.BL {
				push.BL[i] = m.Base()
			}
			return a.runScan(cmd, args, &sf, push, m.Steps(), "baseline scan",
				func(ctx context.Context, e *scan.Engine, asics []*conn.ASIC) (scan.Result, error) {
					return e.Baseline(ctx, asics, m, sf.cfg)
				},
			)
		},
	}
	sf.register(cmd)
	cmd.Flags().StringVarP(&mode, "scan", "s", scan.Multi.String(), "scan type: single-low, single-high or multi")
	return cmd
}

func (a *app) thresholdScanCmd() *cobra.Command {
	var (
		sf    scanFlags
		limit uint8
	)
	cmd := &cobra.Command{
		Use:   "threshold-scan PATTERN...",
		Short: "scan the threshold of PASTTREC ASICs",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if limit > hardware.MaxRegValue {
				return fmt.Errorf("invalid threshold limit %d (max=%d)", limit, hardware.MaxRegValue)
			}
			return sf.check(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScan(cmd, args, &sf, sf.cfg, int(limit)+1, "threshold scan",
				func(ctx context.Context, e *scan.Engine, asics []*conn.ASIC) (scan.Result, error) {
					return e.Threshold(ctx, asics, limit, sf.cfg)
				},
			)
		},
	}
	sf.register(cmd)
	cmd.Flags().Uint8VarP(&limit, "limit", "l", hardware.MaxRegValue, "last scanned threshold (0-127)")
	return cmd
}
