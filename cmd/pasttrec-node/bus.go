// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/pasttrec/trbnet"
)

// busOpener returns a function opening the TrbNet bus through the named
// interface, or through $TRBNET_INTERFACE when iface is empty.
func busOpener(iface string) func(msg log.MsgStream) (trbnet.Bus, error) {
	return func(msg log.MsgStream) (trbnet.Bus, error) {
		opts := []trbnet.Option{
			trbnet.WithMsgStream(msg),
			trbnet.WithOutput(os.Stdout),
		}
		if iface != "" {
			opts = append(opts, trbnet.WithInterface(iface))
		}
		return trbnet.Open(opts...)
	}
}
