// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"os"

	"github.com/rwlabs/serialdevice/cmd/sdhost/commands"
)

var (
	version = "v0.3.0"
)

var buildDate = "unknown"
var buildMode = "development"

func main() {
	info := commands.Info{
		Date:    buildDate,
		Version: version,
	}
	ctx := commands.SetInfo(context.Background(), info)
	cmd := commands.SdhostCmd(info, buildMode == "release")
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
