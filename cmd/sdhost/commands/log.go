// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger logs to w for humans and, if logFile is set, as JSON lines to a
// rotating file.
func newLogger(w io.Writer, verbose bool, logFile string) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	var out io.Writer = zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	if logFile != "" {
		file := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		out = zerolog.MultiLevelWriter(out, file)
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", "sdhost").Logger()
}

func setupLogging(cmd *cobra.Command) error {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}
	logFile, err := cmd.Flags().GetString("log-file")
	if err != nil {
		return err
	}
	log := newLogger(cmd.ErrOrStderr(), verbose, logFile)
	cmd.SetContext(log.WithContext(cmd.Context()))
	return nil
}

func loggerFrom(cmd *cobra.Command) zerolog.Logger {
	return *zerolog.Ctx(cmd.Context())
}
