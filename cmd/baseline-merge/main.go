// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command baseline-merge merges baseline or threshold scan results, such
// as the per-board files written with --split, into a single result.
//
// Results are merged in the order of the command line: an ASIC found in
// several files is taken from the last file holding counts for it.
package main // import "github.com/go-lpc/pasttrec/cmd/baseline-merge"

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-lpc/pasttrec/scan"
	"golang.org/x/sync/errgroup"
)

var (
	msg = log.New(os.Stdout, "baseline-merge: ", 0)
)

func main() {
	xmain(os.Args[1:])
}

func xmain(args []string) {
	var (
		fset = flag.NewFlagSet("baseline-merge", flag.ExitOnError)

		oname = fset.String("o", "result.json", "path to output result file")
	)

	fset.Usage = func() {
		fmt.Printf(`Usage: baseline-merge [OPTIONS] file1.json [file2.json [...]]

ex:
 $> baseline-merge -o result.json ./bl_0x6400.json ./bl_0x6401.json

options:
`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		msg.Fatalf("could not parse input arguments: %+v", err)
	}

	if fset.NArg() == 0 {
		fset.Usage()
		msg.Fatalf("missing input result files")
	}

	if *oname == "" {
		fset.Usage()
		msg.Fatalf("invalid output result file")
	}

	err = process(*oname, fset.Args())
	if err != nil {
		msg.Fatalf("could not merge results: %+v", err)
	}
}

func process(oname string, fnames []string) error {
	res, err := merge(fnames)
	if err != nil {
		return err
	}

	err = res.WriteFile(oname)
	if err != nil {
		return fmt.Errorf("could not write %q: %w", oname, err)
	}
	msg.Printf("merged %d cards from %d files into %q", len(res), len(fnames), oname)
	return nil
}

func merge(fnames []string) (scan.Result, error) {
	var (
		grp errgroup.Group
		rs  = make([]scan.Result, len(fnames))
	)
	for i := range fnames {
		i := i
		grp.Go(func() error {
			r, err := scan.LoadFile(fnames[i])
			if err != nil {
				return err
			}
			rs[i] = r
			return nil
		})
	}

	err := grp.Wait()
	if err != nil {
		return nil, err
	}

	out := make(scan.Result)
	for _, r := range rs {
		out.Merge(r)
	}
	return out, nil
}
