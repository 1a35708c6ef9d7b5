// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package baseline computes PASTTREC baseline registers out of baseline
// scans.
package baseline // import "github.com/go-lpc/pasttrec/baseline"

import (
	"fmt"
	"math"

	"github.com/go-lpc/pasttrec/hardware"
)

// Policy selects how a baseline is extracted from a scan histogram.
type Policy uint8

const (
	// Mode picks the bin with the highest count. Ties are rejected.
	Mode Policy = iota
	// Range picks the count-weighted centroid of the histogram.
	Range
)

func (p Policy) String() string {
	switch p {
	case Mode:
		return "mode"
	case Range:
		return "range"
	default:
		return fmt.Sprintf("Policy(%d)", uint8(p))
	}
}

// ParsePolicy returns the policy named s.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "mode":
		return Mode, nil
	case "range":
		return Range, nil
	}
	return 0, fmt.Errorf("baseline: unknown policy %q", s)
}

// Estimate returns the baseline index of a histogram, together with the
// weight of the measurement.
// A zero weight means the histogram holds no usable measurement, in which
// case the index is 0.
func Estimate(hist []uint32, p Policy) (int, uint64) {
	switch p {
	case Range:
		return centroid(hist)
	default:
		return mode(hist)
	}
}

func mode(hist []uint32) (int, uint64) {
	var (
		idx  = -1
		max  uint32
		ties int
	)
	for i, v := range hist {
		switch {
		case idx < 0 || v > max:
			idx = i
			max = v
			ties = 1
		case v == max:
			ties++
		}
	}
	if idx < 0 || max == 0 || ties != 1 {
		return 0, 0
	}
	return idx, 1
}

func centroid(hist []uint32) (int, uint64) {
	var sum, w uint64
	for i, v := range hist {
		sum += uint64(i+1) * uint64(v)
		w += uint64(v)
	}
	if w == 0 {
		return 0, 0
	}
	c := float64(sum)/float64(w) - 1
	return int(math.RoundToEven(c)), w
}

// Apply shifts an estimated index by offset, and clamps the result to the
// range of a baseline register.
func Apply(idx, offset int) uint8 {
	v := idx + offset
	switch {
	case v < 0:
		v = 0
	case v > hardware.MaxRegValue:
		v = hardware.MaxRegValue
	}
	return uint8(v)
}
