// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/bmsbridge/internal/session"
	"github.com/Thermoquad/bmsbridge/internal/sink"
	"github.com/Thermoquad/bmsbridge/pkg/pace"
)

var (
	discoverFrom  int
	discoverTo    int
	discoverDelay time.Duration
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find BMS addresses on the bus",
	Long: `Probe a range of BMS addresses (ADR) with the pack number request and
report every address that answers.

Addresses that do not answer time out; the link is reopened before the next
probe.`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().IntVar(&discoverFrom, "from", 0x00, "First address to probe")
	discoverCmd.Flags().IntVar(&discoverTo, "to", 0x0F, "Last address to probe")
	discoverCmd.Flags().DurationVar(&discoverDelay, "delay", 100*time.Millisecond, "Delay between probes")
	rootCmd.AddCommand(discoverCmd)
}

// discovered is one address that answered
type discovered struct {
	address string
	packs   int
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if discoverFrom < 0 || discoverTo > 0xFF || discoverFrom > discoverTo {
		return fmt.Errorf("invalid address range %d-%d", discoverFrom, discoverTo)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tr, err := OpenTransport(cfg, logger)
	if err != nil {
		return err
	}
	sess := session.New(tr, sink.Discard{}, session.Options{
		DebugLevel: cfg.DebugOutput,
		Logger:     logger.Named("session"),
	})
	defer sess.Close()

	fmt.Printf("Probing addresses 0x%02X-0x%02X on %s\n\n", discoverFrom, discoverTo, tr.String())

	var found []discovered
	for adr := discoverFrom; adr <= discoverTo && ctx.Err() == nil; adr++ {
		if sess.State() == session.Disconnected {
			if err := sess.Connect(ctx); err != nil {
				return err
			}
		}

		h := header(cfg)
		h.Adr = fmt.Sprintf("%02X", adr)
		reply, err := sess.Request(ctx, h.PackNumber())
		switch {
		case err == nil:
			packs := reply.Record.(pace.PackCount).Packs
			found = append(found, discovered{address: h.Adr, packs: packs})
			fmt.Printf("  ADR %s: %d pack(s)\n", h.Adr, packs)
		case len(reply.Raw) > 0:
			// Answered, but with an error RTN or a bad frame
			found = append(found, discovered{address: h.Adr})
			fmt.Printf("  ADR %s: answered (%v)\n", h.Adr, err)
		default:
			logger.Debug("no answer", zap.String("adr", h.Adr), zap.Error(err))
		}

		select {
		case <-ctx.Done():
		case <-time.After(discoverDelay):
		}
	}

	fmt.Printf("\nFound %d address(es)\n", len(found))
	for _, d := range found {
		if d.packs > 0 {
			fmt.Printf("  --address %s   (%d packs)\n", d.address, d.packs)
		} else {
			fmt.Printf("  --address %s\n", d.address)
		}
	}
	return nil
}
