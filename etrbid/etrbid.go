// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package etrbid decodes PASTTREC pattern addresses.
//
// A pattern address has the form:
//
//	AAAA[:cables[:asics]]
//
// where AAAA is a TrbNet address made of 4 hexadecimal digits, optionally
// prefixed with 0x, and cables and asics are either empty (all of them)
// or comma-separated lists of 1-based indices.
//
// Examples:
//
//	0x6400      all cables and asics of 0x6400
//	6400::2     all cables, second asic
//	6400:1,3    first and third cables, all asics
package etrbid // import "github.com/go-lpc/pasttrec/etrbid"

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrMalformed is returned when a pattern address can not be parsed.
	ErrMalformed = errors.New("etrbid: malformed address")
)

// ETrbID is a concrete (board, cable, asic) address.
// Cable and ASIC are 0-based.
type ETrbID struct {
	Board uint16
	Cable uint8
	ASIC  uint8
}

// Pair returns the (board, cable) part of the address.
func (id ETrbID) Pair() CTrbID { return CTrbID{Board: id.Board, Cable: id.Cable} }

func (id ETrbID) tuple() (uint16, uint8, uint8) { return id.Board, id.Cable, id.ASIC }

func (id ETrbID) String() string {
	return fmt.Sprintf("%s:%d:%d", Hex(uint64(id.Board), 4), id.Cable, id.ASIC)
}

// CTrbID is a concrete (board, cable) address.
type CTrbID struct {
	Board uint16
	Cable uint8
}

// Pair returns id.
func (id CTrbID) Pair() CTrbID { return id }

func (id CTrbID) tuple() (uint16, uint8, uint8) { return id.Board, id.Cable, 0 }

func (id CTrbID) String() string {
	return fmt.Sprintf("%s:%d", Hex(uint64(id.Board), 4), id.Cable)
}

// Addr is a concrete address.
type Addr interface {
	ETrbID | CTrbID
	Pair() CTrbID
	tuple() (uint16, uint8, uint8)
}

// Hex formats v as a 0x-prefixed, zero-padded hexadecimal number of n digits.
// Values not fitting in n digits are rendered as n question marks.
func Hex(v uint64, n int) string {
	s := fmt.Sprintf("%0*x", n, v)
	if len(s) > n {
		return strings.Repeat("?", n)
	}
	return "0x" + s
}

// SortByCable sorts ids by (cable, board, asic).
func SortByCable[T Addr](ids []T) {
	sort.SliceStable(ids, func(i, j int) bool {
		bi, ci, ai := ids[i].tuple()
		bj, cj, aj := ids[j].tuple()
		switch {
		case ci != cj:
			return ci < cj
		case bi != bj:
			return bi < bj
		default:
			return ai < aj
		}
	})
}

// SortByBoard sorts ids by (board, cable, asic).
func SortByBoard[T Addr](ids []T) {
	sort.SliceStable(ids, func(i, j int) bool {
		bi, ci, ai := ids[i].tuple()
		bj, cj, aj := ids[j].tuple()
		switch {
		case bi != bj:
			return bi < bj
		case ci != cj:
			return ci < cj
		default:
			return ai < aj
		}
	})
}

// GroupByCable partitions ids into per-cable buckets, in increasing cable
// order. Each bucket is sorted by board. Cables without any address do not
// get a bucket.
func GroupByCable[T Addr](ids []T) [][]T {
	if len(ids) == 0 {
		return nil
	}
	buf := make([]T, len(ids))
	copy(buf, ids)
	SortByCable(buf)

	var (
		grps [][]T
		beg  = 0
	)
	for i := 1; i <= len(buf); i++ {
		if i < len(buf) && buf[i].Pair().Cable == buf[beg].Pair().Cable {
			continue
		}
		grps = append(grps, buf[beg:i:i])
		beg = i
	}
	return grps
}

// Unique returns ids without duplicates, keeping the first occurrence.
func Unique[T Addr](ids []T) []T {
	var (
		set = make(map[T]struct{}, len(ids))
		out = make([]T, 0, len(ids))
	)
	for _, id := range ids {
		if _, dup := set[id]; dup {
			continue
		}
		set[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Cables returns the unique (board, cable) pairs of ids, in order of
// first appearance.
func Cables[T Addr](ids []T) []CTrbID {
	pairs := make([]CTrbID, len(ids))
	for i, id := range ids {
		pairs[i] = id.Pair()
	}
	return Unique(pairs)
}

// Boards returns the sorted unique boards of ids.
func Boards[T Addr](ids []T) []uint16 {
	var (
		set  = make(map[uint16]struct{})
		brds []uint16
	)
	for _, id := range ids {
		b := id.Pair().Board
		if _, dup := set[b]; dup {
			continue
		}
		set[b] = struct{}{}
		brds = append(brds, b)
	}
	sort.Slice(brds, func(i, j int) bool { return brds[i] < brds[j] })
	return brds
}
