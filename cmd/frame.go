// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/bmsbridge/pkg/pace"
)

var (
	frameCommand string
	frameJSON    bool
	framePack    int
)

var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Encode or decode frames offline",
	Long: `Inspect protocol frames without a BMS connection.

  frame decode <frame>   validate a captured response and print its fields
  frame encode <command> print the request frame for a command`,
}

var frameDecodeCmd = &cobra.Command{
	Use:   "decode [frame|-]",
	Short: "Validate and decode a captured response frame",
	Long: `Validate a captured response frame and print its field breakdown.

The frame is given as text starting with '~'; the trailing CR is optional.
With "-" or no argument, frames are read one per line from stdin.

With --command the INFO payload is also decoded as the response to that
command (analog, capacity, warnings, version, serial, packs).`,
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              runFrameDecode,
}

var frameEncodeCmd = &cobra.Command{
	Use:               "encode <command>",
	Short:             "Print the request frame for a command",
	Args:              cobra.ExactArgs(1),
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              runFrameEncode,
}

func init() {
	frameDecodeCmd.Flags().StringVar(&frameCommand, "command", "", "Decode INFO as the response to this command")
	frameDecodeCmd.Flags().BoolVar(&frameJSON, "json", false, "Print the decoded record as JSON")
	frameEncodeCmd.Flags().IntVar(&framePack, "pack", int(pace.AllPacks), "Pack number for analog requests (255 = all)")

	frameCmd.AddCommand(frameDecodeCmd, frameEncodeCmd)
	rootCmd.AddCommand(frameCmd)
}

// normalizeFrame accepts a frame with or without its CR, and with a
// literal "\r" as printed by the trace output
func normalizeFrame(s string) []byte {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, `\r`)
	return []byte(s + "\r")
}

func runFrameDecode(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 1 && args[0] != "-" {
		return decodeFrame(out, normalizeFrame(args[0]))
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	failed := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := decodeFrame(out, normalizeFrame(line)); err != nil {
			fmt.Fprintf(out, "[ERROR] %v\n", err)
			failed++
		}
		fmt.Fprintln(out)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d frame(s) failed to decode", failed)
	}
	return nil
}

func decodeFrame(out io.Writer, raw []byte) error {
	fmt.Fprint(out, pace.FormatFrame(raw))

	resp, err := pace.DecodeResponse(raw)
	if err != nil {
		return err
	}
	if frameCommand == "" {
		return nil
	}

	command, err := buildCommand(frameCommand, pace.DefaultHeader, int(pace.AllPacks))
	if err != nil {
		return err
	}
	rec, err := pace.DecodeInfo(command.CID2, resp.Info)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	if frameJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	fmt.Fprint(out, pace.FormatRecord(rec))
	if analog, ok := rec.(pace.AnalogData); ok {
		for _, v := range pace.ValidateAnalog(analog) {
			fmt.Fprintf(out, "[WARNING] %s\n", v.Message)
		}
	}
	return nil
}

func runFrameEncode(cmd *cobra.Command, args []string) error {
	h := pace.DefaultHeader
	if bmsAddress != "" {
		h.Adr = strings.ToUpper(bmsAddress)
	}
	command, err := buildCommand(args[0], h, framePack)
	if err != nil {
		return err
	}
	frame, err := pace.EncodeRequest(command)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\\r\n", strings.TrimSuffix(string(frame), "\r"))
	fmt.Fprintf(os.Stderr, "%s (%s)\n", command.Name, pace.CommandName(command.CID2))
	return nil
}
