// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/rwlabs/serialdevice/cmd/sdhost/directory"
	"github.com/rwlabs/serialdevice/pkg/transport"
)

type portList []transport.PortInfo

func (l portList) Elements() []Short {
	res := make([]Short, len(l))
	for i, p := range l {
		res[i] = p
	}
	return res
}

func PortsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ports",
		Short:        "List the serial ports a device could be on",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return err
			}
			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}

			ports, err := transport.ListPorts(all)
			if err != nil {
				return err
			}
			if enc != nil {
				return enc.Encode(portList(ports))
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No serial ports detected.")
				return nil
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p.String())
			}
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "if set, will show all available ports")
	addOutputFlag(cmd)
	return cmd
}

func SetPortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "set-port",
		Short:        "Select the serial port to try first",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return err
			}

			cfg, err := directory.GetUserConfig()
			if err != nil {
				return err
			}

			port, err := pickPort(all)
			if err != nil {
				return err
			}
			cfg.Set(directory.PortCfgKey, port)
			if err := directory.WriteConfig(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Port '%s' will be tried first.\n", port)
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "if set, will show all available ports")
	return cmd
}

func pickPort(all bool) (string, error) {
	ports, err := transport.ListPorts(all)
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", fmt.Errorf("no serial ports detected. Is the device plugged in and its USB driver installed?")
	}

	prompt := promptui.Select{
		Label:     "Choose what serial port you want to use",
		Items:     ports,
		Templates: &promptui.SelectTemplates{},
	}

	i, _, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("you didn't select anything")
	}

	return ports[i].Name, nil
}
