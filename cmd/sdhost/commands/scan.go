// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/cheggaaa/pb/v3"
	"github.com/coreos/go-semver/semver"
	"github.com/spf13/cobra"

	"github.com/rwlabs/serialdevice/cmd/sdhost/directory"
	"github.com/rwlabs/serialdevice/pkg/discovery"
	"github.com/rwlabs/serialdevice/pkg/metrics"
)

// foundDevice prints as the identity; its short form is the port.
type foundDevice discovery.Identity

func (d foundDevice) Elements() []Short { return []Short{d} }
func (d foundDevice) Short() string     { return d.Port }

func ScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the serial ports for the device",
		Long: "Scan the serial ports for a device with the given class and type ID.\n" +
			"Every port is sent an identify request and gets --timeout to answer.\n" +
			"The configured port is tried first.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := getDeviceTarget(cmd)
			if err != nil {
				return err
			}
			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}
			save, err := cmd.Flags().GetBool("save")
			if err != nil {
				return err
			}
			wait, err := cmd.Flags().GetBool("wait")
			if err != nil {
				return err
			}
			var minVersion *semver.Version
			if s, err := cmd.Flags().GetString("min-version"); err != nil {
				return err
			} else if s != "" {
				if minVersion, err = semver.NewVersion(s); err != nil {
					return fmt.Errorf("invalid --min-version '%s', reason: %w", s, err)
				}
			}
			cmd.SilenceUsage = true

			log := loggerFrom(cmd)
			opts := target.scannerOptions(log, metrics.New(nil))
			var bar *pb.ProgressBar
			if isTerminal(os.Stderr) {
				opts = append(opts, discovery.WithProgress(func(port string, i, n int) {
					if bar == nil {
						bar = pb.New(n).SetWriter(os.Stderr).Start()
					}
					bar.Set("prefix", port+" ")
					bar.SetCurrent(int64(i))
				}))
			} else {
				opts = append(opts, discovery.WithProgress(func(port string, i, n int) {
					log.Info().Str("port", port).Msgf("probing port %d of %d", i+1, n)
				}))
			}

			scanner := discovery.NewScanner(opts...)
			var hotplug *portWatcher
			if wait {
				hotplug = newPortWatcher(devDir())
				defer hotplug.Close()
			}
			var match *discovery.Match
			for {
				match, err = scanner.FindDevice(cmd.Context(), target.classID, target.typeID, target.timeout)
				if bar != nil {
					bar.SetCurrent(bar.Total())
					bar.Finish()
					bar = nil
				}
				if err == nil || !wait || !errors.Is(err, discovery.ErrNotFound) {
					break
				}
				log.Info().Msg("device not found, waiting for a new serial port")
				name, err := hotplug.Next(cmd.Context())
				if err != nil {
					return err
				}
				if name != "" {
					log.Debug().Str("node", name).Msg("new device node")
				}
			}
			if err != nil {
				return err
			}
			defer match.Transport.Close()
			id := match.Identity

			if minVersion != nil && id.Version().LessThan(*minVersion) {
				return fmt.Errorf("device on '%s' runs firmware %s, at least %s is required", id.Port, id.Version(), minVersion)
			}

			if enc != nil {
				if err := enc.Encode(foundDevice(id)); err != nil {
					return err
				}
			} else {
				printIdentity(cmd.OutOrStdout(), id)
			}

			if save {
				cfg, err := directory.GetUserConfig()
				if err != nil {
					return err
				}
				cfg.Set(directory.PortCfgKey, id.Port)
				cfg.Set(directory.ClassIDCfgKey, directory.FormatID(id.ClassID))
				cfg.Set(directory.TypeIDCfgKey, directory.FormatID(id.TypeID))
				return directory.WriteConfig(cfg)
			}
			return nil
		},
	}

	addDeviceFlags(cmd)
	addOutputFlag(cmd)
	cmd.Flags().String("min-version", "", "fail unless the device firmware is at least this version")
	cmd.Flags().Bool("save", false, "remember the port the device was found on")
	cmd.Flags().Bool("wait", false, "keep scanning when new serial ports appear until the device is found")
	return cmd
}
