package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cncplan/common/file"

	"github.com/BurntSushi/toml"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

const (
	AxisX = iota
	AxisY
	AxisZ
	AxisA
	AxisB
	AxisC
	Axes
)

var AxisNames = [Axes]string{"x", "y", "z", "a", "b", "c"}

const MicrosecondsPerMinute = 60000000.0

const (
	KinematicsCartesian = "cartesian"
	KinematicsCorexy    = "corexy"

	SegmentMathForwardDiff = "forward_diff"
	SegmentMathClosedForm  = "closed_form"

	ReportText = "text"
	ReportJSON = "json"
)

type AxisConfig struct {
	JerkMax           float64 `toml:"jerk_max" yaml:"jerk_max" json:"jerk_max"`
	JunctionDeviation float64 `toml:"junction_deviation" yaml:"junction_deviation" json:"junction_deviation"`
	StepsPerUnit      float64 `toml:"steps_per_unit" yaml:"steps_per_unit" json:"steps_per_unit"`
}

type LogConfig struct {
	Level      string `toml:"level" yaml:"level" json:"level"`
	File       string `toml:"file" yaml:"file" json:"file"`
	Color      bool   `toml:"color" yaml:"color" json:"color"`
	MaxSize    int    `toml:"max_size" yaml:"max_size" json:"max_size"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `toml:"max_age" yaml:"max_age" json:"max_age"`
}

// SerialConfig describes the step link. An empty Port selects the dry-run
// recorder instead of a device.
type SerialConfig struct {
	Port string `toml:"port" yaml:"port" json:"port"`
	Baud int    `toml:"baud" yaml:"baud" json:"baud"`
}

type ReportConfig struct {
	Format         string `toml:"format" yaml:"format" json:"format"`
	StatusTemplate string `toml:"status_template" yaml:"status_template" json:"status_template"`
	QueueTemplate  string `toml:"queue_template" yaml:"queue_template" json:"queue_template"`
}

type MachineConfig struct {
	Axes                 map[string]AxisConfig `toml:"axes" yaml:"axes" json:"axes"`
	JunctionAcceleration float64               `toml:"junction_acceleration" yaml:"junction_acceleration" json:"junction_acceleration"`
	EstdSegmentUsec      float64               `toml:"estd_segment_usec" yaml:"estd_segment_usec" json:"estd_segment_usec"`
	MinSegmentUsec       float64               `toml:"min_segment_usec" yaml:"min_segment_usec" json:"min_segment_usec"`
	PoolSize             int                   `toml:"pool_size" yaml:"pool_size" json:"pool_size"`
	Kinematics           string                `toml:"kinematics" yaml:"kinematics" json:"kinematics"`
	SegmentMath          string                `toml:"segment_math" yaml:"segment_math" json:"segment_math"`
	Log                  LogConfig             `toml:"log" yaml:"log" json:"log"`
	Serial               SerialConfig          `toml:"serial" yaml:"serial" json:"serial"`
	Report               ReportConfig          `toml:"report" yaml:"report" json:"report"`
}

func defaultAxes() map[string]AxisConfig {
	return map[string]AxisConfig{
		"x": {JerkMax: 5000000000, JunctionDeviation: 0.01, StepsPerUnit: 43.79},
		"y": {JerkMax: 5000000000, JunctionDeviation: 0.01, StepsPerUnit: 43.79},
		"z": {JerkMax: 50000000, JunctionDeviation: 0.01, StepsPerUnit: 1280},
		"a": {JerkMax: 24000000000, JunctionDeviation: 0.1, StepsPerUnit: 8.889},
		"b": {JerkMax: 20000000, JunctionDeviation: 0.01, StepsPerUnit: 8.889},
		"c": {JerkMax: 20000000, JunctionDeviation: 0.01, StepsPerUnit: 8.889},
	}
}

// Defaults is the stock machine profile.
func Defaults() *MachineConfig {
	return &MachineConfig{
		Axes:                 defaultAxes(),
		JunctionAcceleration: 200000,
		EstdSegmentUsec:      5000,
		MinSegmentUsec:       2500,
		PoolSize:             24,
		Kinematics:           KinematicsCartesian,
		SegmentMath:          SegmentMathForwardDiff,
		Log: LogConfig{
			Level:      "info",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Serial: SerialConfig{Baud: 115200},
		Report: ReportConfig{Format: ReportText},
	}
}

// Load reads a machine configuration, picking the codec from the file
// extension. Values missing from the file keep their defaults.
func Load(path string) (*MachineConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	cfg, err := Parse(content, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes content in the format named by ext (".toml", ".yaml",
// ".yml", ".json" or ".cfg") on top of Defaults and validates the result.
func Parse(content []byte, ext string) (*MachineConfig, error) {
	cfg := Defaults()
	cfg.Axes = map[string]AxisConfig{}
	var err error
	switch strings.ToLower(ext) {
	case ".toml":
		_, err = toml.Decode(string(content), cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, cfg)
	case ".json", ".cfg":
		err = sonnet.Unmarshal(content, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, err
	}
	cfg.fillAxisDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// A partially specified axis only overrides the fields it names.
func (c *MachineConfig) fillAxisDefaults() {
	defaults := defaultAxes()
	if c.Axes == nil {
		c.Axes = map[string]AxisConfig{}
	}
	for _, name := range AxisNames {
		axis, ok := c.Axes[name]
		def := defaults[name]
		if !ok {
			c.Axes[name] = def
			continue
		}
		if axis.JerkMax == 0 {
			axis.JerkMax = def.JerkMax
		}
		if axis.JunctionDeviation == 0 {
			axis.JunctionDeviation = def.JunctionDeviation
		}
		if axis.StepsPerUnit == 0 {
			axis.StepsPerUnit = def.StepsPerUnit
		}
		c.Axes[name] = axis
	}
}

func (c *MachineConfig) Validate() error {
	var err error
	known := map[string]bool{}
	for _, name := range AxisNames {
		known[name] = true
	}
	names := make([]string, 0, len(c.Axes))
	for name := range c.Axes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		axis := c.Axes[name]
		if !known[name] {
			err = multierr.Append(err, fmt.Errorf("axes.%s: unknown axis", name))
			continue
		}
		if axis.JerkMax <= 0 {
			err = multierr.Append(err, fmt.Errorf("axes.%s.jerk_max must be above 0, got %v", name, axis.JerkMax))
		}
		if axis.JunctionDeviation < 0 {
			err = multierr.Append(err, fmt.Errorf("axes.%s.junction_deviation must not be negative, got %v", name, axis.JunctionDeviation))
		}
		if axis.StepsPerUnit <= 0 {
			err = multierr.Append(err, fmt.Errorf("axes.%s.steps_per_unit must be above 0, got %v", name, axis.StepsPerUnit))
		}
	}
	if c.JunctionAcceleration <= 0 {
		err = multierr.Append(err, fmt.Errorf("junction_acceleration must be above 0, got %v", c.JunctionAcceleration))
	}
	if c.MinSegmentUsec <= 0 {
		err = multierr.Append(err, fmt.Errorf("min_segment_usec must be above 0, got %v", c.MinSegmentUsec))
	}
	if c.EstdSegmentUsec < c.MinSegmentUsec {
		err = multierr.Append(err, fmt.Errorf("estd_segment_usec %v is below min_segment_usec %v", c.EstdSegmentUsec, c.MinSegmentUsec))
	}
	if c.PoolSize < 3 {
		err = multierr.Append(err, fmt.Errorf("pool_size must be at least 3, got %d", c.PoolSize))
	}
	switch c.Kinematics {
	case KinematicsCartesian, KinematicsCorexy:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown kinematics %q", c.Kinematics))
	}
	switch c.SegmentMath {
	case SegmentMathForwardDiff, SegmentMathClosedForm:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown segment_math %q", c.SegmentMath))
	}
	switch c.Report.Format {
	case ReportText, ReportJSON:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown report format %q", c.Report.Format))
	}
	if c.Serial.Port != "" && c.Serial.Baud <= 0 {
		err = multierr.Append(err, errors.New("serial.baud must be set when serial.port is"))
	}
	return err
}

// Problems splits a Validate error into its individual findings.
func Problems(err error) []error {
	return multierr.Errors(err)
}

func (c *MachineConfig) Axis(i int) AxisConfig {
	return c.Axes[AxisNames[i]]
}

func (c *MachineConfig) JerkMax() [Axes]float64 {
	var out [Axes]float64
	for i := range out {
		out[i] = c.Axis(i).JerkMax
	}
	return out
}

func (c *MachineConfig) JunctionDeviation() [Axes]float64 {
	var out [Axes]float64
	for i := range out {
		out[i] = c.Axis(i).JunctionDeviation
	}
	return out
}

func (c *MachineConfig) StepsPerUnit() [Axes]float64 {
	var out [Axes]float64
	for i := range out {
		out[i] = c.Axis(i).StepsPerUnit
	}
	return out
}

// MinSegmentTime is the minimum segment duration in minutes.
func (c *MachineConfig) MinSegmentTime() float64 {
	return c.MinSegmentUsec / MicrosecondsPerMinute
}

// Save writes the configuration as TOML.
func (c *MachineConfig) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return err
	}
	return file.WriteFileWithSync(path, buf.Bytes())
}
