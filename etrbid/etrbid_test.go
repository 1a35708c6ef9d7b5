// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package etrbid

import (
	"errors"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Pattern
	}{
		{in: "0x6400", want: Pattern{Board: 0x6400}},
		{in: "6400", want: Pattern{Board: 0x6400}},
		{in: "fe4c", want: Pattern{Board: 0xfe4c}},
		{in: "6400:", want: Pattern{Board: 0x6400}},
		{in: "6400::", want: Pattern{Board: 0x6400}},
		{in: "6400:2", want: Pattern{Board: 0x6400, Cables: []int{2}}},
		{in: "6400:1,3", want: Pattern{Board: 0x6400, Cables: []int{1, 3}}},
		{in: "6400::2", want: Pattern{Board: 0x6400, ASICs: []int{2}}},
		{in: "0x6400:1,2:1", want: Pattern{Board: 0x6400, Cables: []int{1, 2}, ASICs: []int{1}}},
		{in: "6400:7:9", want: Pattern{Board: 0x6400, Cables: []int{7}, ASICs: []int{9}}},
		{in: "6400:-1,1", want: Pattern{Board: 0x6400, Cables: []int{-1, 1}}},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Parse(tc.in)
			if err != nil {
				t.Fatalf("could not parse %q: %+v", tc.in, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid pattern:\ngot= %#v\nwant=%#v", got, tc.want)
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"640",
		"64000",
		"0X6400",
		"1x6400",
		"0x640z",
		"zzzz",
		"6400:1:2:3",
		"6400:::",
		"6400:a",
		"6400:1,,2",
		"6400:1;2",
		" 6400",
		"-640",
		"6400:1-",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("invalid error for %q: got=%v, want=%v", in, err, ErrMalformed)
			}
		})
	}
}

func TestParseAll(t *testing.T) {
	ps, err := ParseAll([]string{"6400", "0x6401:1"})
	if err != nil {
		t.Fatalf("could not parse patterns: %+v", err)
	}
	if got, want := len(ps), 2; got != want {
		t.Fatalf("invalid number of patterns: got=%d, want=%d", got, want)
	}

	_, err = ParseAll([]string{"6400", "bad", "6401"})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrMalformed)
	}
}

func TestPatternString(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"6400", "0x6400"},
		{"6400:1,2", "0x6400:1,2"},
		{"6400::2", "0x6400::2"},
		{"6400:3:1", "0x6400:3:1"},
	} {
		p, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("could not parse %q: %+v", tc.in, err)
		}
		if got := p.String(); got != tc.want {
			t.Fatalf("invalid string: got=%q, want=%q", got, tc.want)
		}
	}
}

func TestExpand(t *testing.T) {
	for _, tc := range []struct {
		in     string
		cables int
		asics  int
		want   []ETrbID
	}{
		{
			in:     "AAAA:1,2:1",
			cables: 3, asics: 2,
			want: []ETrbID{{0xaaaa, 0, 0}, {0xaaaa, 1, 0}},
		},
		{
			in:     "AAAA:1,2,3:1",
			cables: 2, asics: 2,
			want: []ETrbID{{0xaaaa, 0, 0}, {0xaaaa, 1, 0}},
		},
		{
			in:     "0x1000::2",
			cables: 3, asics: 2,
			want: []ETrbID{{0x1000, 0, 1}, {0x1000, 1, 1}, {0x1000, 2, 1}},
		},
		{
			in:     "0x1000",
			cables: 2, asics: 2,
			want: []ETrbID{{0x1000, 0, 0}, {0x1000, 0, 1}, {0x1000, 1, 0}, {0x1000, 1, 1}},
		},
		{
			in:     "6400:-1,1:2,-2",
			cables: 3, asics: 2,
			want: []ETrbID{{0x6400, 0, 1}},
		},
		{
			in:     "0x1000:0,4",
			cables: 3, asics: 2,
			want: []ETrbID{},
		},
	} {
		t.Run(tc.in, func(t *testing.T) {
			p, err := Parse(tc.in)
			if err != nil {
				t.Fatalf("could not parse %q: %+v", tc.in, err)
			}
			got := p.Expand(tc.cables, tc.asics)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid expansion:\ngot= %v\nwant=%v", got, tc.want)
			}
		})
	}
}

func TestExpandBounds(t *testing.T) {
	for _, design := range []struct{ cables, asics int }{
		{3, 2}, {2, 2}, {4, 1},
	} {
		for _, in := range []string{"6400", "6400:1,2,3,4,5", "6400::1,2,3", "6400:2:2"} {
			p, err := Parse(in)
			if err != nil {
				t.Fatalf("could not parse %q: %+v", in, err)
			}
			ids := p.Expand(design.cables, design.asics)
			for _, id := range ids {
				if int(id.Cable) >= design.cables || int(id.ASIC) >= design.asics {
					t.Fatalf("%q: out of range address %v for design %v", in, id, design)
				}
			}
			if in == "6400" && len(ids) != design.cables*design.asics {
				t.Fatalf("invalid number of addresses: got=%d, want=%d", len(ids), design.cables*design.asics)
			}
		}
	}
}

func TestSortGroup(t *testing.T) {
	ids := []ETrbID{
		{0x6401, 1, 1},
		{0x6400, 2, 0},
		{0x6400, 1, 0},
		{0x6401, 1, 0},
		{0x6400, 0, 1},
		{0x6400, 1, 0},
	}

	byc := append([]ETrbID(nil), ids...)
	SortByCable(byc)
	want := []ETrbID{
		{0x6400, 0, 1},
		{0x6400, 1, 0},
		{0x6400, 1, 0},
		{0x6401, 1, 0},
		{0x6401, 1, 1},
		{0x6400, 2, 0},
	}
	if !reflect.DeepEqual(byc, want) {
		t.Fatalf("invalid sort-by-cable:\ngot= %v\nwant=%v", byc, want)
	}

	byb := append([]ETrbID(nil), ids...)
	SortByBoard(byb)
	want = []ETrbID{
		{0x6400, 0, 1},
		{0x6400, 1, 0},
		{0x6400, 1, 0},
		{0x6400, 2, 0},
		{0x6401, 1, 0},
		{0x6401, 1, 1},
	}
	if !reflect.DeepEqual(byb, want) {
		t.Fatalf("invalid sort-by-board:\ngot= %v\nwant=%v", byb, want)
	}

	cables := Cables(ids)
	if got, want := cables, []CTrbID{{0x6401, 1}, {0x6400, 2}, {0x6400, 1}, {0x6400, 0}}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid cables:\ngot= %v\nwant=%v", got, want)
	}

	grps := GroupByCable(cables)
	wgrps := [][]CTrbID{
		{{0x6400, 0}},
		{{0x6400, 1}, {0x6401, 1}},
		{{0x6400, 2}},
	}
	if !reflect.DeepEqual(grps, wgrps) {
		t.Fatalf("invalid groups:\ngot= %v\nwant=%v", grps, wgrps)
	}

	if got := GroupByCable([]ETrbID(nil)); got != nil {
		t.Fatalf("invalid empty groups: %v", got)
	}

	if got, want := Boards(ids), []uint16{0x6400, 0x6401}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid boards: got=%v, want=%v", got, want)
	}

	if got, want := len(Unique(ids)), 5; got != want {
		t.Fatalf("invalid unique: got=%d, want=%d", got, want)
	}
}

func TestHex(t *testing.T) {
	for _, tc := range []struct {
		v    uint64
		n    int
		want string
	}{
		{0x6400, 4, "0x6400"},
		{0x42, 4, "0x0042"},
		{0x12345, 4, "????"},
		{0x02010c000000f301, 16, "0x02010c000000f301"},
		{0x64000001, 16, "0x0000000064000001"},
	} {
		if got := Hex(tc.v, tc.n); got != tc.want {
			t.Fatalf("invalid hex: got=%q, want=%q", got, tc.want)
		}
	}
}

func TestString(t *testing.T) {
	if got, want := (ETrbID{0x6400, 1, 0}).String(), "0x6400:1:0"; got != want {
		t.Fatalf("got=%q, want=%q", got, want)
	}
	if got, want := (CTrbID{0x6400, 2}).String(), "0x6400:2"; got != want {
		t.Fatalf("got=%q, want=%q", got, want)
	}
}
