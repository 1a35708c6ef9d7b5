// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/k0kubun/go-ansi"
	"github.com/manifoldco/promptui"
	"github.com/schollz/progressbar/v3"
)

type progress interface {
	Add(n int) error
	Finish() error
}

func newBar(n int, desc string) progress {
	return progressbar.NewOptions(
		n,
		progressbar.OptionSetWriter(ansi.NewAnsiStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionOnCompletion(func() { _, _ = ansi.NewAnsiStderr().Write([]byte("\n")) }),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

type nopBar struct{}

func (nopBar) Add(int) error { return nil }
func (nopBar) Finish() error { return nil }

func confirm(label string) (bool, error) {
	prompt := promptui.Select{
		Label:    label + " [Yes/No]",
		HideHelp: true,
		Items:    []string{"Yes", "No"},
	}
	_, res, err := prompt.Run()
	if err != nil {
		return false, err
	}
	return res == "Yes", nil
}
