// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-lpc/pasttrec/etrbid"
	"github.com/go-lpc/pasttrec/scaler"
	"github.com/go-lpc/pasttrec/trbnet"
	"github.com/spf13/cobra"
)

func (a *app) scalersCmd() *cobra.Command {
	var (
		settle time.Duration
		count  int
	)
	cmd := &cobra.Command{
		Use:     "scalers PATTERN...",
		Short:   "show the scaler rates of TDC boards",
		PreRunE: checkPatterns,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			s, err := a.connect()
			if err != nil {
				return err
			}
			defer s.Close()

			ids, err := a.decode(s, args)
			if err != nil {
				return err
			}

			type source struct {
				board uint16
				n     int
			}
			var srcs []source
			for _, board := range etrbid.Boards(ids) {
				d, ok, err := s.f.Registry().Resolve(board, a.ignoreMissing)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				srcs = append(srcs, source{board: board, n: d.Scalers()})
			}

			var sopts []scaler.Option
			if a.sleep != nil {
				sopts = append(sopts, scaler.WithSleep(a.sleep))
			}
			smp := scaler.NewSampler(s.bus, sopts...)

			for i := 0; count <= 0 || i < count; i++ {
				snap := make(scaler.Snapshot)
				for _, src := range srcs {
					diff, err := smp.SampleDiff(ctx, src.board, src.n, settle)
					if err != nil {
						if errors.Is(err, context.Canceled) {
							return s.Close()
						}
						return err
					}
					for board, vs := range diff {
						snap[board] = vs
					}
				}
				printRates(cmd.OutOrStdout(), snap, settle)
			}
			return s.Close()
		},
	}
	cmd.Flags().DurationVarP(&settle, "time", "t", 1*time.Second, "measurement window")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of measurements (0: until interrupted)")
	return cmd
}

func printRates(w io.Writer, snap scaler.Snapshot, settle time.Duration) {
	const width = 12

	boards := snap.Boards()
	nmax := 0
	for _, vs := range snap {
		if len(vs) > nmax {
			nmax = len(vs)
		}
	}

	fmt.Fprintf(w, "R=%.2f s  ", settle.Seconds())
	for _, board := range boards {
		fmt.Fprintf(w, "%*s", width, trbnet.Addr(board))
	}
	fmt.Fprintf(w, "\n")

	rates := make(map[uint16][]float64, len(snap))
	for board, vs := range snap {
		rates[board] = scaler.Rates(vs, settle)
	}
	for ch := 0; ch < nmax; ch++ {
		fmt.Fprintf(w, "Chan %3d  ", ch)
		for _, board := range boards {
			rs := rates[board]
			if ch >= len(rs) {
				fmt.Fprintf(w, "%*s", width, "-")
				continue
			}
			fmt.Fprintf(w, "%*.1f", width, rs[ch])
		}
		fmt.Fprintf(w, "\n")
	}
}
