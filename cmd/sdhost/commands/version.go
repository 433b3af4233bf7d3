// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func VersionCmd(info Info, isReleaseBuild bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "version",
		Short:        "Print the version of sdhost",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			version := info.Version
			if !isReleaseBuild {
				version = buildVersion()
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Version:\t%s\n", version)
			fmt.Fprintf(w, "Build date:\t%s\n", info.Date)
			fmt.Fprintf(w, "Go:\t\t%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			if !isReleaseBuild {
				fmt.Fprintln(w, "Build type:\tdevelopment")
			}
		},
	}
	return cmd
}

// buildVersion reads the VCS revision the binary was built from.
func buildVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev-unknown"
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return "dev-" + s.Value[:7]
		}
	}
	return "dev-unknown"
}
