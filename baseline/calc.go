// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package baseline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/pasttrec/hardware"
	"github.com/go-lpc/pasttrec/scan"
)

// Card holds the computed configuration of the ASICs of a front-end card.
type Card struct {
	TrbID string          `json:"trbid"`
	Cable int             `json:"cable"`
	ASICs []hardware.ASIC `json:"asics"`
}

// Board returns the address of the board the card is plugged on.
func (card *Card) Board() (uint16, error) {
	c := scan.Card{TrbID: card.TrbID}
	return c.Board()
}

// Output holds the computed configurations, keyed like the scan result
// they were computed from.
type Output map[string]*Card

// Keys returns the sorted card keys.
func (out Output) Keys() []string {
	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Encode writes the JSON representation of the configurations.
func (out Output) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	err := enc.Encode(out)
	if err != nil {
		return fmt.Errorf("baseline: could not encode configurations: %w", err)
	}
	return nil
}

// WriteFile writes the configurations to a JSON file.
func (out Output) WriteFile(fname string) error {
	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("baseline: could not create output file: %w", err)
	}
	defer f.Close()

	err = out.Encode(f)
	if err != nil {
		return err
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("baseline: could not close output file %q: %w", fname, err)
	}
	return nil
}

// Load decodes configurations from their JSON representation.
func Load(r io.Reader) (Output, error) {
	var out Output
	err := json.NewDecoder(r).Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("baseline: could not decode configurations: %w", err)
	}
	for key, card := range out {
		if card == nil {
			return nil, fmt.Errorf("baseline: empty card %q", key)
		}
		for a, asic := range card.ASICs {
			err = asic.Validate()
			if err != nil {
				return nil, fmt.Errorf("baseline: invalid configuration for %s asic=%d: %w", key, a, err)
			}
		}
	}
	return out, nil
}

// LoadFile decodes configurations from a JSON file.
func LoadFile(fname string) (Output, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("baseline: could not open configuration file: %w", err)
	}
	defer f.Close()

	out, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("baseline: could not load %q: %w", fname, err)
	}
	return out, nil
}

type config struct {
	msg    log.MsgStream
	report *Report
	vth    *uint8
	gain   *uint8
}

// Option configures a calculation.
type Option func(*config)

// WithMsgStream sets the message stream used to log diagnostics.
func WithMsgStream(msg log.MsgStream) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithReport prints the estimation of each ASIC before its offset is
// requested.
func WithReport(r *Report) Option {
	return func(cfg *config) {
		cfg.report = r
	}
}

// WithThreshold overrides the threshold of the scan configuration.
func WithThreshold(v uint8) Option {
	return func(cfg *config) {
		cfg.vth = &v
	}
}

// WithGain overrides the gain of the scan configuration.
func WithGain(v uint8) Option {
	return func(cfg *config) {
		cfg.gain = &v
	}
}

// Estimation is the result of the estimation of a single channel.
type Estimation struct {
	Index  int    // estimated bin
	Weight uint64 // zero when the histogram holds no measurement
}

// Calc computes the configuration of every ASIC of a baseline scan.
// The configuration recorded in the scan is the starting point. Each
// baseline is the estimated bin shifted by the offset of its ASIC.
func Calc(res scan.Result, p Policy, offs Offsets, opts ...Option) (Output, error) {
	cfg := config{
		msg: log.NewMsgStream("baseline", log.LvlError, io.Discard),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	out := make(Output, len(res))
	for _, key := range res.Keys() {
		src := res[key]
		base := hardware.DefaultASIC()
		if src.Config != nil {
			base = *src.Config
		}
		if cfg.vth != nil {
			base.Vth = *cfg.vth
		}
		if cfg.gain != nil {
			base.Gain = *cfg.gain
		}

		card := &Card{
			TrbID: src.TrbID,
			Cable: src.Cable,
			ASICs: make([]hardware.ASIC, len(src.Results)),
		}
		for a, hists := range src.Results {
			if len(hists) > hardware.NumChannels {
				return nil, fmt.Errorf(
					"baseline: card %s asic=%d has too many channels (%d > %d)",
					key, a, len(hists), hardware.NumChannels,
				)
			}
			est := make([]Estimation, len(hists))
			for ch, h := range hists {
				idx, w := Estimate(h, p)
				est[ch] = Estimation{Index: idx, Weight: w}
				if w == 0 {
					cfg.msg.Warnf(
						"no measurement for %s cable=%d asic=%d channel=%d",
						src.TrbID, src.Cable, a, ch,
					)
				}
			}

			if cfg.report != nil {
				err := cfg.report.ASIC(key, src, a, est)
				if err != nil {
					return nil, err
				}
			}

			off, err := offs.Offset(card, a)
			if err != nil {
				return nil, err
			}

			asic := base
			for ch, e := range est {
				asic.BL[ch] = Apply(e.Index, off)
			}
			err = asic.Validate()
			if err != nil {
				return nil, fmt.Errorf("baseline: invalid configuration for %s asic=%d: %w", key, a, err)
			}
			card.ASICs[a] = asic
		}
		out[key] = card
	}
	return out, nil
}
