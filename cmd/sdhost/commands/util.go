// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
	"gopkg.in/yaml.v2"

	"github.com/rwlabs/serialdevice/cmd/sdhost/directory"
	"github.com/rwlabs/serialdevice/pkg/device"
	"github.com/rwlabs/serialdevice/pkg/discovery"
	"github.com/rwlabs/serialdevice/pkg/metrics"
	"github.com/rwlabs/serialdevice/pkg/packet"
)

type encoder interface {
	Encode(interface{}) error
}

// parseOutputFlag returns nil when no --output was given; the command then
// prints its human readable form.
func parseOutputFlag(cmd *cobra.Command) (encoder, error) {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}
	return newEncoder(cmd.OutOrStdout(), output)
}

func newEncoder(w io.Writer, output string) (encoder, error) {
	switch strings.ToLower(output) {
	case "":
		return nil, nil
	case "json":
		return json.NewEncoder(w), nil
	case "yaml":
		return yaml.NewEncoder(w), nil
	case "short":
		return newShortEncoder(w), nil
	default:
		return nil, fmt.Errorf("--output flag '%s' was not recognized. Must be either json, yaml or short", output)
	}
}

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "output format (json, yaml or short)")
}

type shortEncoder struct {
	w io.Writer
}

func newShortEncoder(w io.Writer) *shortEncoder {
	return &shortEncoder{
		w: w,
	}
}

type Elements interface {
	Elements() []Short
}

type Short interface {
	Short() string
}

func (s *shortEncoder) Encode(v interface{}) error {
	es, ok := v.(Elements)
	if !ok {
		return fmt.Errorf("value type %T was not compatible with the Elements interface", v)
	}
	for _, e := range es.Elements() {
		fmt.Fprintln(s.w, e.Short())
	}
	return nil
}

// idValue is a pflag.Value for 16-bit class and type IDs.
type idValue uint16

var _ pflag.Value = (*idValue)(nil)

func (v *idValue) String() string {
	return directory.FormatID(uint16(*v))
}

func (v *idValue) Set(s string) error {
	id, err := directory.ParseID(s)
	if err != nil {
		return err
	}
	*v = idValue(id)
	return nil
}

func (v *idValue) Type() string {
	return "id"
}

func addDeviceFlags(cmd *cobra.Command) {
	class := idValue(directory.DefaultClassID)
	typ := idValue(directory.DefaultTypeID)
	cmd.Flags().Var(&class, "class", "class ID of the device, hex with 0x (default from config)")
	cmd.Flags().Var(&typ, "type", "type ID of the device, hex with 0x (default from config)")
	cmd.Flags().DurationP("timeout", "t", 0, "how long each port gets to answer (default from config)")
	cmd.Flags().StringP("port", "p", "", "port to try first (default from config)")
	cmd.Flags().Bool("all", false, "if set, will also probe ports that don't look like USB serial adapters")
}

// deviceTarget is what a command looks for, from flags falling back to the
// user config.
type deviceTarget struct {
	classID uint16
	typeID  uint16
	timeout time.Duration
	port    string
	all     bool
	reset   bool
	cfg     *directory.Config
}

func getDeviceTarget(cmd *cobra.Command) (*deviceTarget, error) {
	v, err := directory.GetUserConfig()
	if err != nil {
		return nil, err
	}
	cfg, err := directory.Decode(v)
	if err != nil {
		return nil, err
	}
	res := &deviceTarget{
		classID: cfg.Device.ClassID,
		typeID:  cfg.Device.TypeID,
		timeout: cfg.Device.Timeout,
		port:    cfg.Port,
		all:     cfg.AllPorts,
		reset:   cfg.Device.ResetOnOpen,
		cfg:     cfg,
	}
	flags := cmd.Flags()
	if f := flags.Lookup("class"); f != nil && f.Changed {
		res.classID = uint16(*f.Value.(*idValue))
	}
	if f := flags.Lookup("type"); f != nil && f.Changed {
		res.typeID = uint16(*f.Value.(*idValue))
	}
	if flags.Changed("timeout") {
		if res.timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("port") {
		if res.port, err = flags.GetString("port"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("all") {
		if res.all, err = flags.GetBool("all"); err != nil {
			return nil, err
		}
	}
	if res.timeout <= 0 {
		res.timeout = discovery.DefaultTimeout
	}
	return res, nil
}

func (t *deviceTarget) scannerOptions(log zerolog.Logger, m *metrics.Metrics) []discovery.Option {
	return []discovery.Option{
		discovery.WithLogger(log),
		discovery.WithMode(t.cfg.Serial),
		discovery.WithAllPorts(t.all),
		discovery.WithPreferredPort(t.port),
		discovery.WithResetOnOpen(t.reset),
		discovery.WithMetrics(m),
	}
}

// openDevice discovers the device and returns an open session.
func openDevice(cmd *cobra.Command, m *metrics.Metrics) (*device.Device, error) {
	target, err := getDeviceTarget(cmd)
	if err != nil {
		return nil, err
	}
	log := loggerFrom(cmd)
	if m == nil {
		m = metrics.New(nil)
	}
	scanner := discovery.NewScanner(target.scannerOptions(log, m)...)
	fmt.Fprintf(cmd.ErrOrStderr(), "Looking for device %s/%s ...\n",
		directory.FormatID(target.classID), directory.FormatID(target.typeID))
	dev := device.Open(cmd.Context(), target.classID, target.typeID,
		device.WithLogger(log),
		device.WithMetrics(m),
		device.WithScanner(scanner),
		device.WithTimeout(target.timeout),
	)
	if !dev.IsOpen() {
		return nil, fmt.Errorf("error opening port or device not found: %w", dev.Err())
	}
	return dev, nil
}

// parseAssignment parses "key=value" where value is a packet.ParseValue
// literal such as "u8:200" or "set".
func parseAssignment(arg string) (string, packet.Value, error) {
	key, literal, ok := strings.Cut(arg, "=")
	if !ok {
		return "", packet.Value{}, fmt.Errorf("'%s' is not of the form key=value", arg)
	}
	if !packet.ValidKey(key) {
		return "", packet.Value{}, fmt.Errorf("%w: '%s' must be %d printable characters", packet.ErrInvalidKey, key, packet.KeyLen)
	}
	v, err := packet.ParseValue(literal)
	if err != nil {
		return "", packet.Value{}, err
	}
	return key, v, nil
}

// frameRecord is one inbound field set as printed by the commands.
type frameRecord struct {
	Time   time.Time      `json:"time" yaml:"time"`
	Fields map[string]any `json:"fields" yaml:"fields"`
	text   string
}

func newFrameRecord(fields []packet.Field) frameRecord {
	fs := packet.NewFieldSet()
	for _, f := range fields {
		fs.Set(f.Key, f.Value)
	}
	return frameRecord{
		Time:   time.Now(),
		Fields: fs.Map(),
		text:   fs.String(),
	}
}

func (r frameRecord) Elements() []Short { return []Short{r} }
func (r frameRecord) Short() string     { return r.text }

func printFrame(w io.Writer, enc encoder, r frameRecord) error {
	if enc != nil {
		return enc.Encode(r)
	}
	_, err := fmt.Fprintf(w, "%s %s\n", r.Time.Format("15:04:05.000"), r.text)
	return err
}

func printIdentity(w io.Writer, id discovery.Identity) {
	fmt.Fprintf(w, "Found Device On Port: %s\n", id.Port)
	fmt.Fprintf(w, "  Description: %s - %s\n", id.Name, id.Info)
	fmt.Fprintf(w, "  Class ID: %s\n", directory.FormatID(id.ClassID))
	fmt.Fprintf(w, "  Type ID: %s\n", directory.FormatID(id.TypeID))
	fmt.Fprintf(w, "  Serial #: %d\n", id.Serial)
	fmt.Fprintf(w, "  Ver: %s\n", id.Version())
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
