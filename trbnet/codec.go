// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trbnet

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

func parseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	return strconv.ParseUint(s, 16, 32)
}

// parseReplies decodes the output of 'trbcmd r': pairs of
// (responder, value) hexadecimal words.
func parseReplies(out string) ([]Reply, error) {
	toks := strings.Fields(out)
	if len(toks)%2 != 0 {
		return nil, fmt.Errorf("trbnet: odd number of words in reply %q", out)
	}
	reps := make([]Reply, 0, len(toks)/2)
	for i := 0; i < len(toks); i += 2 {
		addr, err := parseHex(toks[i])
		if err != nil || addr > 0xffff {
			return nil, fmt.Errorf("trbnet: invalid responder %q in reply", toks[i])
		}
		val, err := parseHex(toks[i+1])
		if err != nil {
			return nil, fmt.Errorf("trbnet: invalid value %q in reply: %w", toks[i+1], err)
		}
		reps = append(reps, Reply{Board: uint16(addr), Value: uint32(val)})
	}
	return reps, nil
}

// parseMem decodes the output of 'trbcmd rm':
//
//	H: 0x6400 0x0030
//	0xc001 0x00001234
//	0xc002 0x00000042
//
// Words are stored at their offset from reg.
func parseMem(out string, reg uint16, n int) (map[uint16][]uint32, error) {
	var (
		mem = make(map[uint16][]uint32)
		cur []uint32
		brd uint16
		ok  bool
	)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		toks := strings.Fields(sc.Text())
		switch len(toks) {
		case 3:
			if ok {
				mem[brd] = cur
			}
			addr, err := parseHex(toks[1])
			if err != nil || addr > 0xffff {
				return nil, fmt.Errorf("trbnet: invalid header %q", sc.Text())
			}
			brd = uint16(addr)
			cur = make([]uint32, 0, n)
			ok = true
		case 2:
			if !ok {
				continue
			}
			addr, err := parseHex(toks[0])
			if err != nil {
				return nil, fmt.Errorf("trbnet: invalid register %q: %w", toks[0], err)
			}
			val, err := parseHex(toks[1])
			if err != nil {
				return nil, fmt.Errorf("trbnet: invalid value %q: %w", toks[1], err)
			}
			i := int(addr) - int(reg)
			if i < 0 || i >= n {
				continue
			}
			for len(cur) <= i {
				cur = append(cur, 0)
			}
			cur[i] = uint32(val)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("trbnet: could not scan memory dump: %w", err)
	}
	if ok {
		mem[brd] = cur
	}
	return mem, nil
}

// splitMem decodes the libtrbnet read_mem framing: for each responder,
// a header word (len<<16 | address) followed by len data words.
func splitMem(raw []uint32) (map[uint16][]uint32, error) {
	mem := make(map[uint16][]uint32)
	for i := 0; i < len(raw); {
		hdr := raw[i]
		n := int(hdr >> 16)
		brd := uint16(hdr & 0xffff)
		beg := i + 1
		end := beg + n
		if end > len(raw) {
			return nil, fmt.Errorf(
				"trbnet: truncated block for 0x%04x (len=%d, avail=%d)",
				brd, n, len(raw)-beg,
			)
		}
		vs := make([]uint32, n)
		copy(vs, raw[beg:end])
		mem[brd] = vs
		i = end
	}
	return mem, nil
}

// pairReplies decodes the libtrbnet read framing: (address, value) pairs.
func pairReplies(raw []uint32) []Reply {
	reps := make([]Reply, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		reps = append(reps, Reply{Board: uint16(raw[i]), Value: raw[i+1]})
	}
	return reps
}

func cmdW(board, reg uint16, v uint32) []string {
	return []string{"w", Addr(board), Addr(reg), fmt.Sprintf("0x%08x", v)}
}

func cmdWM(board, reg uint16, mode uint8) []string {
	return []string{"wm", Addr(board), Addr(reg), strconv.Itoa(int(mode)), "-"}
}

func cmdR(board, reg uint16) []string {
	return []string{"r", Addr(board), Addr(reg)}
}

func cmdRM(board, reg uint16, n int, mode uint8) []string {
	return []string{"rm", Addr(board), Addr(reg), strconv.Itoa(n), strconv.Itoa(int(mode))}
}

func memInput(data []uint32) string {
	var o strings.Builder
	for _, v := range data {
		fmt.Fprintf(&o, "0x%08x\n", v)
	}
	return o.String()
}
