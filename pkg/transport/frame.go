// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	soi = 0x7E
	eoi = 0x0D
)

// SelectFrame picks the response frame out of a buffer that may hold
// several CR-terminated chunks, such as a late reply to an earlier request
// followed by the current one. The first chunk starting with SOI is
// returned with its CR restored. A buffer with no such chunk is returned
// unchanged so that frame validation reports the bad SOI.
func SelectFrame(buf []byte) (frame []byte, chunks int) {
	parts := bytes.Split(buf, []byte{eoi})
	for _, p := range parts {
		if len(p) > 0 && p[0] == soi {
			frame = make([]byte, 0, len(p)+1)
			frame = append(frame, p...)
			return append(frame, eoi), len(parts)
		}
	}
	return buf, len(parts)
}

// frameSelector wraps SelectFrame with throttled multi-frame diagnostics
type frameSelector struct {
	log        *zap.Logger
	debugLevel int
	sometimes  rate.Sometimes
}

func newFrameSelector(opts Options) *frameSelector {
	return &frameSelector{
		log:        opts.Logger,
		debugLevel: opts.DebugLevel,
		sometimes:  rate.Sometimes{First: 3, Interval: time.Minute},
	}
}

func (s *frameSelector) selectFrame(buf []byte) []byte {
	frame, chunks := SelectFrame(buf)
	if chunks > 2 && s.debugLevel > 0 {
		s.sometimes.Do(func() {
			s.log.Warn("multiple EOIs detected",
				zap.Int("chunks", chunks),
				zap.String("data", fmt.Sprintf("%q", buf)),
				zap.String("hex", fmt.Sprintf("% x", buf)))
		})
	}
	return frame
}
