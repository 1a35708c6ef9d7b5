// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package baseline

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/peterh/liner"
)

// Offsets provides the offset added to the estimated baselines of an ASIC.
type Offsets interface {
	Offset(card *Card, asic int) (int, error)
}

// Fixed applies the same offset to every ASIC.
type Fixed int

func (o Fixed) Offset(*Card, int) (int, error) { return int(o), nil }

// Prompter reads a line of input from an operator.
type Prompter interface {
	Prompt(prompt string) (string, error)
}

// Prompt asks the operator for the offset of each ASIC.
// An empty answer is a zero offset.
type Prompt struct {
	p Prompter
	w io.Writer
}

// NewPrompt returns an offset provider reading answers from p and
// writing diagnostics to w.
func NewPrompt(p Prompter, w io.Writer) *Prompt {
	return &Prompt{p: p, w: w}
}

func (p *Prompt) Offset(card *Card, asic int) (int, error) {
	for {
		line, err := p.p.Prompt("Offset for base lines (default: 0): ")
		if err != nil {
			return 0, fmt.Errorf(
				"baseline: could not read offset of %s cable=%d asic=%d: %w",
				card.TrbID, card.Cable, asic, err,
			)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return 0, nil
		}
		v, err := strconv.Atoi(line)
		if err != nil {
			fmt.Fprintf(p.w, "Input is not a number, try again\n")
			continue
		}
		return v, nil
	}
}

// Terminal is a line editor reading offsets from the terminal.
type Terminal struct {
	*Prompt
	line *liner.State
}

// NewTerminal returns an interactive offset provider.
// Ctrl-C aborts the prompt.
func NewTerminal(w io.Writer) *Terminal {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &Terminal{
		Prompt: NewPrompt(line, w),
		line:   line,
	}
}

// Close restores the terminal. It is safe to call Close more than once.
func (t *Terminal) Close() error {
	if t.line == nil {
		return nil
	}
	line := t.line
	t.line = nil
	err := line.Close()
	if err != nil {
		return fmt.Errorf("baseline: could not close terminal: %w", err)
	}
	return nil
}
