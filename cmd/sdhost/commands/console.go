// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/rwlabs/serialdevice/pkg/device"
)

func ConsoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Talk to the device interactively",
		Long: "Find the device and start a prompt. Every line first runs one update\n" +
			"tick, then the command. Type 'help' for the commands.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			dev, err := openDevice(cmd, nil)
			if err != nil {
				return err
			}
			defer dev.Close()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "sdhost> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "quit",
			})
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()

			c := &console{dev: dev, out: rl.Stdout()}
			printIdentity(c.out, dev.Identity())
			c.printHelp()
			for {
				line, err := rl.Readline()
				if err == readline.ErrInterrupt {
					continue
				}
				if err != nil {
					return nil
				}
				quit, err := c.exec(line)
				if err != nil {
					if errors.Is(err, device.ErrSessionFailed) {
						return err
					}
					fmt.Fprintln(c.out, "Error:", err)
				}
				if quit {
					return nil
				}
			}
		},
	}

	addDeviceFlags(cmd)
	return cmd
}

type console struct {
	dev *device.Device
	out io.Writer
}

func (c *console) printHelp() {
	fmt.Fprintln(c.out, `Commands:
  add <key=value>...  queue fields, for example 'add pwm=set lvl=u8:200'
  send                send the queued fields as one packet
  show                print the last field set from the device
  clear               forget the last field set
  info                print the device identity and session state
  rnd                 ask for a random number ('rnd' -> get)
  pwm <level>         set the PWM level (0-255)
  led on|off          switch the LED
  quit                leave`)
}

// exec runs one update tick and then the command in line.
func (c *console) exec(line string) (bool, error) {
	if err := c.dev.Update(); err != nil {
		return true, err
	}

	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false, nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "add", "a":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: add <key=value>...")
		}
		for _, arg := range args {
			key, v, err := parseAssignment(arg)
			if err != nil {
				return false, err
			}
			if err := c.dev.Add(key, v); err != nil {
				return false, err
			}
		}
		fmt.Fprintf(c.out, "%d field(s) queued\n", c.dev.Pending())
	case "send", "s":
		n := c.dev.Pending()
		if err := c.dev.SendPacket(); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "sent %d field(s)\n", n)
	case "show":
		if len(c.dev.Fields()) == 0 {
			fmt.Fprintln(c.out, "no data")
			break
		}
		state := "old"
		if c.dev.Available() {
			state = "new"
		}
		fmt.Fprintf(c.out, "%s (%s)\n", newFrameRecord(c.dev.Fields()).text, state)
	case "clear":
		c.dev.ClearData()
	case "info", "i":
		printIdentity(c.out, c.dev.Identity())
		stats := c.dev.DecoderStats()
		fmt.Fprintf(c.out, "  Session: %s (%s)\n", c.dev.ID(), c.dev.State())
		fmt.Fprintf(c.out, "  Frames: %d, resyncs: %d, queued: %d\n", stats.Frames, stats.Resyncs, c.dev.Pending())
	case "rnd":
		return false, c.dev.Add("rnd", "get")
	case "pwm":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: pwm <level>")
		}
		level, err := strconv.ParseUint(args[0], 0, 8)
		if err != nil {
			return false, fmt.Errorf("invalid level '%s', must be 0-255", args[0])
		}
		if err := c.dev.Add("pwm", "set"); err != nil {
			return false, err
		}
		return false, c.dev.Add("lvl", uint8(level))
	case "led":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return false, fmt.Errorf("usage: led on|off")
		}
		state := uint8(0)
		if args[0] == "on" {
			state = 1
		}
		if err := c.dev.Add("led", "set"); err != nil {
			return false, err
		}
		return false, c.dev.Add("sta", state)
	case "quit", "exit", "q":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command '%s' (type 'help' for commands)", cmd)
	}
	return false, nil
}
