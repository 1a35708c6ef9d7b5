// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-lpc/pasttrec/hardware"
	"github.com/go-lpc/pasttrec/scan"
)

func TestMerge(t *testing.T) {
	tmp := t.TempDir()

	cfg := hardware.ScanASIC()
	c0 := scan.NewCard(0x6400, 0, hardware.TRB3, hardware.BaselineSteps)
	c0.Config = &cfg
	c0.Results[0][1][4] = 10
	c0.Results[1][2][5] = 20

	c1 := scan.NewCard(0x6400, 0, hardware.TRB3, hardware.BaselineSteps)
	c1.Results[1][3][6] = 30

	c2 := scan.NewCard(0x6401, 2, hardware.TRB3, hardware.BaselineSteps)
	c2.Results[0][0][0] = 40

	var fnames []string
	for i, res := range []scan.Result{
		{scan.Key(0x6400, 0): c0},
		{scan.Key(0x6400, 0): c1, scan.Key(0x6401, 2): c2},
	} {
		fname := filepath.Join(tmp, []string{"a.json", "b.json"}[i])
		err := res.WriteFile(fname)
		if err != nil {
			t.Fatalf("could not write %q: %+v", fname, err)
		}
		fnames = append(fnames, fname)
	}

	oname := filepath.Join(tmp, "out.json")
	err := process(oname, fnames)
	if err != nil {
		t.Fatalf("could not merge: %+v", err)
	}

	got, err := scan.LoadFile(oname)
	if err != nil {
		t.Fatalf("could not load merged result: %+v", err)
	}

	if got, want := got.Keys(), []string{scan.Key(0x6400, 0), scan.Key(0x6401, 2)}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid keys: got=%v, want=%v", got, want)
	}

	card := got[scan.Key(0x6400, 0)]
	if card.Config == nil || *card.Config != cfg {
		t.Fatalf("invalid config: got=%+v, want=%+v", card.Config, cfg)
	}
	for _, tc := range []struct {
		asic, ch, bin int
		want          uint32
	}{
		{0, 1, 4, 10},
		{1, 2, 5, 0},
		{1, 3, 6, 30},
	} {
		if got := card.Results[tc.asic][tc.ch][tc.bin]; got != tc.want {
			t.Fatalf("asic=%d ch=%d bin=%d: got=%d, want=%d", tc.asic, tc.ch, tc.bin, got, tc.want)
		}
	}
	if got, want := got[scan.Key(0x6401, 2)].Results[0][0][0], uint32(40); got != want {
		t.Fatalf("invalid count: got=%d, want=%d", got, want)
	}

	_, err = merge([]string{fnames[0], filepath.Join(tmp, "missing.json")})
	if err == nil {
		t.Fatalf("expected an error")
	}
}
