// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package baseline

import (
	"fmt"

	"github.com/go-lpc/pasttrec/conn"
	"github.com/go-lpc/pasttrec/etrbid"
	"github.com/go-lpc/pasttrec/hardware"
)

// Push writes the configurations of out to the hardware.
// Cards plugged on unreachable boards are skipped when ignoreMissing is set.
func Push(f *conn.Factory, out Output, ignoreMissing bool) error {
	var (
		ids  []etrbid.ETrbID
		cfgs = make(map[etrbid.ETrbID]hardware.ASIC)
	)
	for _, key := range out.Keys() {
		card := out[key]
		board, err := card.Board()
		if err != nil {
			return err
		}
		if card.Cable < 0 || len(card.ASICs) > hardware.MaxASICs {
			return fmt.Errorf("baseline: invalid card %s (cable=%d, asics=%d)", key, card.Cable, len(card.ASICs))
		}
		for a, cfg := range card.ASICs {
			id := etrbid.ETrbID{Board: board, Cable: uint8(card.Cable), ASIC: uint8(a)}
			ids = append(ids, id)
			cfgs[id] = cfg
		}
	}

	asics, err := f.ASICs(ids, ignoreMissing)
	if err != nil {
		return fmt.Errorf("baseline: could not connect to asics: %w", err)
	}
	for _, asic := range asics {
		if int(asic.Cable.Cable) >= asic.Design.Cables {
			return fmt.Errorf("baseline: invalid cable for %v (design %v)", asic, asic.Design)
		}
		cfg := cfgs[asic.ID()]
		err = conn.PushConfig([]*conn.ASIC{asic}, cfg)
		if err != nil {
			return fmt.Errorf("baseline: could not push configuration to %v: %w", asic, err)
		}
	}
	return nil
}
