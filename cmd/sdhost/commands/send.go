// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rwlabs/serialdevice/pkg/device"
	"github.com/rwlabs/serialdevice/pkg/packet"
)

const replyPollInterval = 5 * time.Millisecond

func SendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <key=value>...",
		Short: "Send one packet to the device",
		Long: "Queue the given fields and send them to the device as one packet.\n\n" +
			"A value is either a command text or a typed number:\n" +
			"  pwm=set  rnd=cmd:get  lvl=u8:200  pot=u16:0x3ff  rng=u32:7  enc=i32:-5",
		Example: "sdhost send pwm=set lvl=u8:200",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wait, err := cmd.Flags().GetDuration("wait")
			if err != nil {
				return err
			}
			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}
			type assignment struct {
				key string
				val packet.Value
			}
			var fields []assignment
			for _, arg := range args {
				key, v, err := parseAssignment(arg)
				if err != nil {
					return err
				}
				fields = append(fields, assignment{key, v})
			}
			cmd.SilenceUsage = true

			dev, err := openDevice(cmd, nil)
			if err != nil {
				return err
			}
			defer dev.Close()

			for _, f := range fields {
				if err := dev.Add(f.key, f.val); err != nil {
					return err
				}
			}
			if err := dev.SendPacket(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Sent %d field(s) to '%s'.\n", len(fields), dev.PortName())

			if wait <= 0 {
				return nil
			}
			return awaitReply(cmd.Context(), dev, wait, cmd.OutOrStdout(), enc)
		},
	}

	addDeviceFlags(cmd)
	addOutputFlag(cmd)
	cmd.Flags().Duration("wait", 0, "wait this long for a field set from the device and print it")
	return cmd
}

// awaitReply polls dev until a field set arrives or timeout passes.
func awaitReply(ctx context.Context, dev *device.Device, timeout time.Duration, w io.Writer, enc encoder) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(replyPollInterval)
	defer ticker.Stop()
	for {
		if err := dev.Update(); err != nil {
			return err
		}
		if dev.Available() {
			defer dev.ClearData()
			return printFrame(w, enc, newFrameRecord(dev.Fields()))
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("no reply from the device within %s", timeout)
		case <-ticker.C:
		}
	}
}
