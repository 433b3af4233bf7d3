// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/rwlabs/serialdevice/cmd/sdhost/directory"
)

func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configure sdhost",
		Long:  "Configure the sdhost command line tool.",
	}

	cmd.AddCommand(
		ConfigDeviceCmd(),
		ConfigSerialCmd(),
		ConfigShowCmd(),
	)
	return cmd
}

func ConfigDeviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Set the class and type ID of the device to look for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := directory.GetUserConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if f := flags.Lookup("class"); f.Changed {
				cfg.Set(directory.ClassIDCfgKey, f.Value.String())
			}
			if f := flags.Lookup("type"); f.Changed {
				cfg.Set(directory.TypeIDCfgKey, f.Value.String())
			}
			if flags.Changed("timeout") {
				timeout, err := flags.GetDuration("timeout")
				if err != nil {
					return err
				}
				cfg.Set(directory.TimeoutCfgKey, timeout.String())
			}
			if flags.Changed("reset-on-open") {
				reset, err := flags.GetBool("reset-on-open")
				if err != nil {
					return err
				}
				cfg.Set(directory.ResetOnOpenCfgKey, reset)
			}
			cmd.SilenceUsage = true
			return directory.WriteConfig(cfg)
		},
	}

	class := idValue(directory.DefaultClassID)
	typ := idValue(directory.DefaultTypeID)
	cmd.Flags().Var(&class, "class", "class ID of the device, hex with 0x")
	cmd.Flags().Var(&typ, "type", "type ID of the device, hex with 0x")
	cmd.Flags().Duration("timeout", 0, "how long each port gets to answer the identify request")
	cmd.Flags().Bool("reset-on-open", false, "pulse DTR/RTS to reboot the device when its port is opened")
	return cmd
}

func ConfigSerialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serial",
		Short: "Set the line settings agreed with the device firmware",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := directory.GetUserConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("baud") {
				baud, err := flags.GetInt("baud")
				if err != nil {
					return err
				}
				cfg.Set(directory.SerialCfgKey+".baud", baud)
			}
			if flags.Changed("parity") {
				parity, err := flags.GetString("parity")
				if err != nil {
					return err
				}
				cfg.Set(directory.SerialCfgKey+".parity", parity)
			}
			if flags.Changed("stop-bits") {
				stopBits, err := flags.GetInt("stop-bits")
				if err != nil {
					return err
				}
				cfg.Set(directory.SerialCfgKey+".stop_bits", stopBits)
			}
			cmd.SilenceUsage = true
			return directory.WriteConfig(cfg)
		},
	}

	cmd.Flags().Int("baud", 115200, "baud rate")
	cmd.Flags().String("parity", "none", "parity: none, even or odd")
	cmd.Flags().Int("stop-bits", 1, "stop bits: 1 or 2")
	return cmd
}

func ConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "show",
		Short:        "Print the effective configuration",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}
			v, err := directory.GetUserConfig()
			if err != nil {
				return err
			}
			cfg, err := directory.Decode(v)
			if err != nil {
				return err
			}
			if enc == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", v.ConfigFileUsed())
				enc = yaml.NewEncoder(cmd.OutOrStdout())
			}
			return enc.Encode(cfg)
		},
	}
	addOutputFlag(cmd)
	return cmd
}
