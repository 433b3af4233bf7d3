// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package directory

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/rwlabs/serialdevice/pkg/discovery"
	"github.com/rwlabs/serialdevice/pkg/transport"
)

const (
	// UserConfigPathEnv if set, will load the user config from that path.
	UserConfigPathEnv = "SDHOST_USER_CONFIG_PATH"
	// LogFileEnv if set, is the default of the --log-file flag.
	LogFileEnv = "SDHOST_LOG_FILE"
)

// Keys of the user config.
const (
	PortCfgKey        = "port"
	ClassIDCfgKey     = "device.class_id"
	TypeIDCfgKey      = "device.type_id"
	TimeoutCfgKey     = "device.timeout"
	ResetOnOpenCfgKey = "device.reset_on_open"
	AllPortsCfgKey    = "all_ports"
	SerialCfgKey      = "serial"
)

// The device the host app looks for unless configured otherwise.
const (
	DefaultClassID uint16 = 0x0A0A
	DefaultTypeID  uint16 = 0x0D0E
)

type DeviceConfig struct {
	ClassID     uint16        `mapstructure:"class_id" yaml:"class_id" json:"classId"`
	TypeID      uint16        `mapstructure:"type_id" yaml:"type_id" json:"typeId"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	ResetOnOpen bool          `mapstructure:"reset_on_open" yaml:"reset_on_open" json:"resetOnOpen"`
}

// Config is the decoded user config.
type Config struct {
	Port     string         `mapstructure:"port" yaml:"port,omitempty" json:"port,omitempty"`
	AllPorts bool           `mapstructure:"all_ports" yaml:"all_ports" json:"allPorts"`
	Device   DeviceConfig   `mapstructure:"device" yaml:"device" json:"device"`
	Serial   transport.Mode `mapstructure:"serial" yaml:"serial" json:"serial"`
}

func GetUserConfigPath() (string, error) {
	if path, ok := os.LookupEnv(UserConfigPathEnv); ok {
		return path, nil
	}

	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homedir, ".config", "sdhost", "config.yaml"), nil
}

func setDefaults(cfg *viper.Viper) {
	mode := transport.DefaultMode()
	cfg.SetDefault(ClassIDCfgKey, FormatID(DefaultClassID))
	cfg.SetDefault(TypeIDCfgKey, FormatID(DefaultTypeID))
	cfg.SetDefault(TimeoutCfgKey, discovery.DefaultTimeout.String())
	cfg.SetDefault(ResetOnOpenCfgKey, false)
	cfg.SetDefault(AllPortsCfgKey, false)
	cfg.SetDefault(SerialCfgKey+".baud", mode.BaudRate)
	cfg.SetDefault(SerialCfgKey+".data_bits", mode.DataBits)
	cfg.SetDefault(SerialCfgKey+".parity", mode.Parity)
	cfg.SetDefault(SerialCfgKey+".stop_bits", mode.StopBits)
}

func GetUserConfig() (*viper.Viper, error) {
	path, err := GetUserConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config path: %w", err)
	}

	cfg := viper.New()
	cfg.SetConfigType("yaml")
	cfg.SetConfigFile(path)
	setDefaults(cfg)
	if _, err := os.Stat(path); err == nil {
		if err := cfg.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read user config: %w", err)
		}
	}
	return cfg, nil
}

// WriteConfig replaces the config file atomically.
func WriteConfig(cfg *viper.Viper) error {
	file := cfg.ConfigFileUsed()
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmpFile := filepath.Join(dir, ".config.tmp.yaml")
	if err := cfg.WriteConfigAs(tmpFile); err != nil {
		return err
	}
	defer os.Remove(tmpFile)

	return os.Rename(tmpFile, file)
}

// Decode reads cfg into a Config. IDs may be given as hex strings
// ("0x0A0A") or plain numbers.
func Decode(cfg *viper.Viper) (*Config, error) {
	var res Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		StringToUint16HookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := cfg.Unmarshal(&res, hook); err != nil {
		return nil, fmt.Errorf("invalid user config '%s', reason: %w", cfg.ConfigFileUsed(), err)
	}
	return &res, nil
}

// StringToUint16HookFunc parses strings with a base prefix into uint16.
func StringToUint16HookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Uint16 {
			return data, nil
		}
		return ParseID(data.(string))
	}
}

// ParseID parses a 16-bit class or type ID. A 0x prefix selects hex.
func ParseID(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("'%s' is not a 16-bit id", s)
	}
	return uint16(v), nil
}

func FormatID(id uint16) string {
	return fmt.Sprintf("0x%04X", id)
}
