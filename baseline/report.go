// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package baseline

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/go-lpc/pasttrec/scan"
)

// Report prints the estimated baselines of each channel, next to the
// scan histogram they were computed from.
type Report struct {
	w   io.Writer
	err error

	yellow func(format string, a ...interface{}) string
	green  func(format string, a ...interface{}) string
	red    func(format string, a ...interface{}) string
}

// NewReport returns a report writing to w.
func NewReport(w io.Writer) *Report {
	return &Report{
		w:      w,
		yellow: color.New(color.FgYellow).SprintfFunc(),
		green:  color.New(color.FgGreen).SprintfFunc(),
		red:    color.New(color.FgRed).SprintfFunc(),
	}
}

// Millivolts returns the baseline voltage of a baseline register value.
func Millivolts(bl int) int { return -31 + 2*bl }

func (r *Report) printf(format string, args ...interface{}) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}

// ASIC prints the estimations of an ASIC of a card.
func (r *Report) ASIC(key string, card *scan.Card, asic int, est []Estimation) error {
	r.printf("%s\n", r.yellow(
		"Processing  %s  (%s)  CARD: %d  ASIC: %d",
		key, card.TrbID, card.Cable, asic,
	))
	for ch, e := range est {
		mv := r.green
		if e.Weight == 0 {
			mv = r.red
		}
		r.printf(
			"%d  bl: %s (0x%02x) %s [ %s]\n",
			ch, r.yellow("%2d", e.Index), e.Index,
			mv("%+3d mV", Millivolts(e.Index)),
			r.markers(card.Results[asic][ch], e.Index),
		)
	}
	if r.err != nil {
		return fmt.Errorf("baseline: could not write report: %w", r.err)
	}
	return nil
}

func (r *Report) markers(hist []uint32, pos int) string {
	var o strings.Builder
	for i, v := range hist {
		if i == pos {
			o.WriteString(r.yellow("%d", v))
		} else {
			fmt.Fprintf(&o, "%d", v)
		}
		o.WriteString(", ")
	}
	return o.String()
}
