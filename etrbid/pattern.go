// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package etrbid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var (
	patternLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Word", Pattern: `-?[0-9A-Za-z]+`},
		{Name: "Punct", Pattern: `[:,]`},
	})

	patternParser = participle.MustBuild[pattern](
		participle.Lexer(patternLexer),
		participle.UseLookahead(2),
	)
)

// pattern is the raw grammar of a pattern address.
type pattern struct {
	Board    string     `@Word`
	Sections []*section `@@*`
}

type section struct {
	Colon   string   `@":"`
	Indices []string `( @Word ( "," @Word )* )?`
}

// Pattern is a decoded pattern address.
// Cables and ASICs hold the requested 1-based indices; nil means all.
type Pattern struct {
	Board  uint16
	Cables []int
	ASICs  []int
}

func (p Pattern) String() string {
	var o strings.Builder
	o.WriteString(Hex(uint64(p.Board), 4))
	if p.Cables == nil && p.ASICs == nil {
		return o.String()
	}
	list := func(vs []int) string {
		strs := make([]string, len(vs))
		for i, v := range vs {
			strs[i] = strconv.Itoa(v)
		}
		return strings.Join(strs, ",")
	}
	o.WriteString(":" + list(p.Cables))
	if p.ASICs != nil {
		o.WriteString(":" + list(p.ASICs))
	}
	return o.String()
}

// Parse decodes a pattern address.
func Parse(s string) (Pattern, error) {
	raw, err := patternParser.ParseString("", s)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w %q: %v", ErrMalformed, s, err)
	}
	if len(raw.Sections) > 2 {
		return Pattern{}, fmt.Errorf("%w %q: too many sections", ErrMalformed, s)
	}

	board, err := parseBoard(raw.Board)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w %q: %v", ErrMalformed, s, err)
	}

	p := Pattern{Board: board}
	for i, sec := range raw.Sections {
		if len(sec.Indices) == 0 {
			continue
		}
		idx := make([]int, len(sec.Indices))
		for j, v := range sec.Indices {
			idx[j], err = strconv.Atoi(v)
			if err != nil {
				return Pattern{}, fmt.Errorf("%w %q: invalid index %q", ErrMalformed, s, v)
			}
		}
		switch i {
		case 0:
			p.Cables = idx
		case 1:
			p.ASICs = idx
		}
	}
	return p, nil
}

// ParseAll decodes a list of pattern addresses, stopping at the first
// malformed one.
func ParseAll(vs []string) ([]Pattern, error) {
	ps := make([]Pattern, len(vs))
	for i, v := range vs {
		p, err := Parse(v)
		if err != nil {
			return nil, err
		}
		ps[i] = p
	}
	return ps, nil
}

func parseBoard(s string) (uint16, error) {
	switch len(s) {
	case 6:
		if !strings.HasPrefix(s, "0x") {
			return 0, fmt.Errorf("invalid board address %q", s)
		}
		s = s[2:]
	case 4:
	default:
		return 0, fmt.Errorf("invalid board address %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid board address %q", s)
	}
	return uint16(v), nil
}

// Expand returns all the concrete addresses matched by p on a design with
// ncables cables and nasics ASICs per cable.
// Out of range indices are silently dropped.
func (p Pattern) Expand(ncables, nasics int) []ETrbID {
	var (
		cables = indices(p.Cables, ncables)
		asics  = indices(p.ASICs, nasics)
		ids    = make([]ETrbID, 0, len(cables)*len(asics))
	)
	for _, c := range cables {
		for _, a := range asics {
			ids = append(ids, ETrbID{Board: p.Board, Cable: uint8(c), ASIC: uint8(a)})
		}
	}
	return ids
}

func indices(sel []int, n int) []int {
	if sel == nil {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, 0, len(sel))
	for _, v := range sel {
		if v < 1 || v > n {
			continue
		}
		idx = append(idx, v-1)
	}
	return idx
}
