// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !libtrbnet

package trbnet

import "fmt"

const haveLibTrbNet = false

func newLibTrbNet() (Bus, error) {
	return nil, fmt.Errorf("trbnet: binary built without libtrbnet support (build tag 'libtrbnet')")
}
