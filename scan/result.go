// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-lpc/pasttrec/etrbid"
	"github.com/go-lpc/pasttrec/hardware"
	"github.com/go-lpc/pasttrec/trbnet"
	"golang.org/x/sync/errgroup"
)

// Card holds the scan histograms of a front-end card.
type Card struct {
	TrbID   string         `json:"trbid"`
	Cable   int            `json:"cable"`
	Config  *hardware.ASIC `json:"config"`
	Results [][][]uint32   `json:"results"` // [asic][channel][register value]
}

// NewCard returns an empty card for the given design.
func NewCard(board uint16, cable uint8, d hardware.Design, depth int) *Card {
	card := &Card{
		TrbID:   trbnet.Addr(board),
		Cable:   int(cable),
		Results: make([][][]uint32, d.ASICs),
	}
	for a := range card.Results {
		card.Results[a] = make([][]uint32, d.Channels)
		for ch := range card.Results[a] {
			card.Results[a][ch] = make([]uint32, depth)
		}
	}
	return card
}

// Board returns the address of the board the card is plugged on.
func (card *Card) Board() (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(card.TrbID, "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("scan: invalid trbid %q: %w", card.TrbID, err)
	}
	return uint16(v), nil
}

// Key returns the default key of a card.
func Key(board uint16, cable uint8) string {
	return etrbid.Hex(uint64(board)<<16|uint64(cable), 16)
}

// Result holds the scan histograms of a set of cards, keyed by card.
type Result map[string]*Card

// Keys returns the sorted card keys.
func (r Result) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge adds the cards of o to r.
// The ASICs of a card present in both results are replaced by the ones of o
// when they hold any count. The first non-nil configuration wins.
func (r Result) Merge(o Result) {
	for _, k := range o.Keys() {
		src := o[k]
		dst, ok := r[k]
		if !ok {
			r[k] = src.clone()
			continue
		}
		if dst.Config == nil && src.Config != nil {
			cfg := *src.Config
			dst.Config = &cfg
		}
		for a := range src.Results {
			if !hasCounts(src.Results[a]) {
				continue
			}
			if a >= len(dst.Results) {
				dst.Results = append(dst.Results, make([][][]uint32, a+1-len(dst.Results))...)
			}
			dst.Results[a] = cloneHists(src.Results[a])
		}
	}
}

func (card *Card) clone() *Card {
	out := &Card{
		TrbID:   card.TrbID,
		Cable:   card.Cable,
		Results: make([][][]uint32, len(card.Results)),
	}
	if card.Config != nil {
		cfg := *card.Config
		out.Config = &cfg
	}
	for a := range card.Results {
		out.Results[a] = cloneHists(card.Results[a])
	}
	return out
}

func cloneHists(hs [][]uint32) [][]uint32 {
	out := make([][]uint32, len(hs))
	for i, h := range hs {
		out[i] = append([]uint32(nil), h...)
	}
	return out
}

func hasCounts(hs [][]uint32) bool {
	for _, h := range hs {
		for _, v := range h {
			if v != 0 {
				return true
			}
		}
	}
	return false
}

// Load decodes a result from its JSON representation.
func Load(r io.Reader) (Result, error) {
	var res Result
	err := json.NewDecoder(r).Decode(&res)
	if err != nil {
		return nil, fmt.Errorf("scan: could not decode result: %w", err)
	}
	return res, nil
}

// LoadFile decodes a result from a JSON file.
func LoadFile(fname string) (Result, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("scan: could not open result file: %w", err)
	}
	defer f.Close()

	res, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("scan: could not load %q: %w", fname, err)
	}
	return res, nil
}

// Encode writes the JSON representation of a result.
// Histograms are written one per line.
func (r Result) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	enc := &encoder{w: bw}

	enc.printf("{")
	for i, k := range r.Keys() {
		card := r[k]
		if i > 0 {
			enc.printf(",")
		}
		enc.printf("\n  %s: {", enc.json(k))
		enc.printf("\n    \"trbid\": %s,", enc.json(card.TrbID))
		enc.printf("\n    \"cable\": %d,", card.Cable)
		enc.printf("\n    \"config\": %s,", enc.json(card.Config))
		enc.printf("\n    \"results\": [")
		for a, hs := range card.Results {
			if a > 0 {
				enc.printf(",")
			}
			enc.printf("\n      [")
			for ch, h := range hs {
				if ch > 0 {
					enc.printf(",")
				}
				enc.printf("\n        %s", enc.json(h))
			}
			enc.printf("\n      ]")
		}
		enc.printf("\n    ]\n  }")
	}
	enc.printf("\n}\n")

	if enc.err != nil {
		return fmt.Errorf("scan: could not encode result: %w", enc.err)
	}
	err := bw.Flush()
	if err != nil {
		return fmt.Errorf("scan: could not flush result: %w", err)
	}
	return nil
}

type encoder struct {
	w   io.Writer
	err error
}

func (enc *encoder) printf(format string, args ...interface{}) {
	if enc.err != nil {
		return
	}
	_, enc.err = fmt.Fprintf(enc.w, format, args...)
}

func (enc *encoder) json(v interface{}) string {
	if enc.err != nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		enc.err = err
		return ""
	}
	return string(raw)
}

// WriteFile writes the result to a JSON file.
func (r Result) WriteFile(fname string) error {
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("scan: could not create result file: %w", err)
	}
	defer f.Close()

	err = r.Encode(f)
	if err != nil {
		return err
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("scan: could not close result file %q: %w", fname, err)
	}
	return nil
}

// ByBoard splits a result into per-board results.
func (r Result) ByBoard() map[string]Result {
	out := make(map[string]Result)
	for k, card := range r {
		sub, ok := out[card.TrbID]
		if !ok {
			sub = make(Result)
			out[card.TrbID] = sub
		}
		sub[k] = card
	}
	return out
}

// WriteFiles writes one file per board, named <prefix>_<trbid>.json, in dir.
// It returns the names of the written files, sorted.
func (r Result) WriteFiles(ctx context.Context, dir, prefix string) ([]string, error) {
	var (
		subs  = r.ByBoard()
		names = make([]string, 0, len(subs))
	)
	for trbid := range subs {
		names = append(names, filepath.Join(dir, prefix+"_"+trbid+".json"))
	}
	sort.Strings(names)

	grp, ctx := errgroup.WithContext(ctx)
	for trbid, sub := range subs {
		var (
			fname = filepath.Join(dir, prefix+"_"+trbid+".json")
			sub   = sub
		)
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return sub.WriteFile(fname)
		})
	}

	err := grp.Wait()
	if err != nil {
		return nil, err
	}
	return names, nil
}
