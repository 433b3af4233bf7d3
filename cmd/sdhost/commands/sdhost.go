// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/rwlabs/serialdevice/cmd/sdhost/directory"
)

type ctxKey string

const (
	ctxKeyInfo ctxKey = "info"
)

type Info struct {
	Version string `mapstructure:"version" yaml:"version" json:"version"`
	Date    string `mapstructure:"date" yaml:"date" json:"date"`
}

func SetInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxKeyInfo, info)
}

func GetInfo(ctx context.Context) Info {
	return ctx.Value(ctxKeyInfo).(Info)
}

func SdhostCmd(info Info, isReleaseBuild bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sdhost",
		Short: "Find and talk to serial devices",
		Long: "sdhost finds a device by its class and type ID on any serial port and\n" +
			"exchanges key-tagged fields with it.\n\n" +
			"The device answers an identify request with its name, serial number and\n" +
			"firmware version. After that, both sides send frames of three-letter\n" +
			"keys with typed values.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd)
		},
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "log debug output")
	cmd.PersistentFlags().String("log-file", os.Getenv(directory.LogFileEnv), "also write logs to this file, rotated")

	cmd.AddCommand(
		PortsCmd(),
		SetPortCmd(),
		ScanCmd(),
		MonitorCmd(),
		SendCmd(),
		ConsoleCmd(),
		ConfigCmd(),
		VersionCmd(info, isReleaseBuild),
	)
	return cmd
}
