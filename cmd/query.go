// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/bmsbridge/internal/session"
	"github.com/Thermoquad/bmsbridge/internal/sink"
	"github.com/Thermoquad/bmsbridge/pkg/pace"
)

var (
	queryPack  int
	queryJSON  bool
	queryFrame bool
)

// commandBuilders maps CLI command names to request builders
var commandBuilders = map[string]func(h pace.Header, pack uint8) pace.Command{
	"packs":    func(h pace.Header, _ uint8) pace.Command { return h.PackNumber() },
	"version":  func(h pace.Header, _ uint8) pace.Command { return h.SoftwareVersion() },
	"serial":   func(h pace.Header, _ uint8) pace.Command { return h.SerialNumber() },
	"analog":   func(h pace.Header, pack uint8) pace.Command { return h.PackAnalogData(pack) },
	"capacity": func(h pace.Header, _ uint8) pace.Command { return h.PackCapacity() },
	"warnings": func(h pace.Header, _ uint8) pace.Command { return h.WarnInfo() },
}

func commandNames() []string {
	names := make([]string, 0, len(commandBuilders))
	for name := range commandBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildCommand returns the request for a CLI command name
func buildCommand(name string, h pace.Header, pack int) (pace.Command, error) {
	build, ok := commandBuilders[strings.ToLower(name)]
	if !ok {
		return pace.Command{}, fmt.Errorf("unknown command %q (use one of: %s)", name, strings.Join(commandNames(), ", "))
	}
	if pack < 0 || pack > 255 {
		return pace.Command{}, fmt.Errorf("pack must be 0-255, got %d", pack)
	}
	return build(h, uint8(pack)), nil
}

var queryCmd = &cobra.Command{
	Use:   "query <command>",
	Short: "Send one request and print the decoded response",
	Long: `Send a single request to the BMS and print the decoded response.

Commands:
  packs     number of packs on the bus
  version   BMS firmware version
  serial    BMS and pack serial numbers
  analog    cell voltages, temperatures, current, voltage, capacity (--pack, default all)
  capacity  whole-pack capacity, SOC and SOH
  warnings  warning, protection and balancing state

Use --frame to also print the field breakdown of the response frame.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: commandNames(),
	RunE:      runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryPack, "pack", int(pace.AllPacks), "Pack number for analog requests (255 = all)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Print the record as JSON")
	queryCmd.Flags().BoolVar(&queryFrame, "frame", false, "Print the response frame breakdown")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	command, err := buildCommand(args[0], header(cfg), queryPack)
	if err != nil {
		return err
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
	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer sess.Close()

	reply, reqErr := sess.Request(ctx, command)
	if queryFrame && len(reply.Raw) > 0 {
		fmt.Print(pace.FormatFrame(reply.Raw))
		fmt.Println()
	}
	if reqErr != nil {
		return reqErr
	}

	if queryJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reply.Record)
	}
	fmt.Print(pace.FormatRecord(reply.Record))
	return nil
}
