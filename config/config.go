package config

import (
	"bytes"
	"io"
	"io/ioutil"
	"math/bits"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/pingcap-incubator/tinystm/stm"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Output styles of the workload report.
const (
	OutputStyleTable = "table"
	OutputStyleJSON  = "json"
)

// Config is the configuration of one tinystm process.
type Config struct {
	STM      STMConfig      `toml:"stm" yaml:"stm"`
	Workload WorkloadConfig `toml:"workload" yaml:"workload"`

	// Log related config.
	Log log.Config `toml:"log" yaml:"log"`

	// StatusAddr is where the status server listens. Empty disables it.
	StatusAddr string `toml:"status-addr" yaml:"status-addr"`
	// Output is the style of the workload report, "table" or "json".
	Output string `toml:"output" yaml:"output"`

	// For all warnings during parsing.
	WarningMsgs []string `toml:"-" yaml:"-"`

	logger   *zap.Logger
	logProps *log.ZapProperties
}

// STMConfig fixes the geometry of the transactional region.
type STMConfig struct {
	RegionSize ByteSize `toml:"region-size" yaml:"region-size"`
	StripeSize ByteSize `toml:"stripe-size" yaml:"stripe-size"`
	// Log a warning every time a transaction has conflicted this many more times. 0 disables the warning.
	ConflictWarnThreshold uint64 `toml:"conflict-warn-threshold" yaml:"conflict-warn-threshold"`
}

// WorkloadConfig drives the dining philosophers workload.
type WorkloadConfig struct {
	Philosophers int `toml:"philosophers" yaml:"philosophers"`
	// Rounds is how many times every philosopher takes and puts down its chopsticks.
	Rounds           int      `toml:"rounds" yaml:"rounds"`
	ObserverSamples  int      `toml:"observer-samples" yaml:"observer-samples"`
	ObserverInterval Duration `toml:"observer-interval" yaml:"observer-interval"`
}

const (
	defaultConflictWarnThreshold = 1 << 20
	defaultPhilosophers          = 8
	defaultRounds                = 500000
	defaultObserverSamples       = 10000
	defaultObserverInterval      = 100 * time.Microsecond
)

func getLogLevel() (logLevel string) {
	logLevel = "info"
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		logLevel = l
	}
	return
}

// NewDefaultConfig returns the configuration of the stock workload: eight philosophers on a 512 byte region.
func NewDefaultConfig() *Config {
	return &Config{
		STM: STMConfig{
			RegionSize:            512,
			StripeSize:            8,
			ConflictWarnThreshold: defaultConflictWarnThreshold,
		},
		Workload: WorkloadConfig{
			Philosophers:     defaultPhilosophers,
			Rounds:           defaultRounds,
			ObserverSamples:  defaultObserverSamples,
			ObserverInterval: NewDuration(defaultObserverInterval),
		},
		Log:    log.Config{Level: getLogLevel()},
		Output: OutputStyleTable,
	}
}

// NewTestConfig returns a configuration small enough to run in unit tests.
func NewTestConfig() *Config {
	c := NewDefaultConfig()
	c.Workload.Rounds = 2000
	c.Workload.ObserverSamples = 200
	c.Workload.ObserverInterval = NewDuration(0)
	return c
}

// Load reads the file at path over c. The format is chosen by the extension: .toml, .yaml or .yml.
func (c *Config) Load(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, c)
		if err != nil {
			return errors.Annotatef(err, "decode config %s", path)
		}
		for _, key := range meta.Undecoded() {
			c.WarningMsgs = append(c.WarningMsgs, "config contains undefined item: "+key.String())
		}
	case ".yaml", ".yml":
		if err := c.loadYAML(path); err != nil {
			return errors.Annotatef(err, "decode config %s", path)
		}
	default:
		return errors.Errorf("unsupported config file %s, expect .toml, .yaml or .yml", path)
	}
	return nil
}

// loadYAML decodes the YAML file at path over c. Keys matching no config item are reported in WarningMsgs like the
// undecoded keys of a TOML file; any other type error fails the load.
func (c *Config) loadYAML(path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Trace(err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err = dec.Decode(c)
	if err == nil || err == io.EOF {
		return nil
	}
	te, ok := err.(*yaml.TypeError)
	if !ok {
		return errors.Trace(err)
	}
	var undefined []string
	for _, msg := range te.Errors {
		key, ok := unknownYAMLField(msg)
		if !ok {
			return errors.Trace(err)
		}
		undefined = append(undefined, key)
	}
	for _, key := range undefined {
		c.WarningMsgs = append(c.WarningMsgs, "config contains undefined item: "+key)
	}
	return nil
}

// unknownYAMLField extracts the key from a "line N: field KEY not found in type T" decode error.
func unknownYAMLField(msg string) (string, bool) {
	const prefix, suffix = "field ", " not found in type "
	start := strings.Index(msg, prefix)
	end := strings.Index(msg, suffix)
	if start < 0 || end < start+len(prefix) {
		return "", false
	}
	return msg[start+len(prefix) : end], true
}

// Adjust fills unset items with their defaults.
func (c *Config) Adjust() {
	def := NewDefaultConfig()
	if c.STM.RegionSize == 0 {
		c.STM.RegionSize = def.STM.RegionSize
	}
	if c.STM.StripeSize == 0 {
		c.STM.StripeSize = def.STM.StripeSize
	}
	if c.Workload.Philosophers == 0 {
		c.Workload.Philosophers = def.Workload.Philosophers
	}
	if c.Output == "" {
		c.Output = def.Output
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// Validate checks the configuration for values the engine or the workload cannot run with.
func (c *Config) Validate() error {
	stripe := int(c.STM.StripeSize)
	if stripe < 8 || stripe%8 != 0 || bits.OnesCount(uint(stripe)) != 1 {
		return errors.Errorf("stripe-size %v must be a power of two and a multiple of 8", c.STM.StripeSize)
	}
	region := int(c.STM.RegionSize)
	if region <= 0 || region%stripe != 0 {
		return errors.Errorf("region-size %v must be a positive multiple of stripe-size %v", c.STM.RegionSize, c.STM.StripeSize)
	}
	if c.Workload.Philosophers < 2 {
		return errors.Errorf("philosophers must be at least 2, got %d", c.Workload.Philosophers)
	}
	if c.Workload.Philosophers > region/stripe {
		return errors.Errorf("%d philosophers need %d stripes, the region only has %d",
			c.Workload.Philosophers, c.Workload.Philosophers, region/stripe)
	}
	if c.Workload.Rounds < 0 || c.Workload.ObserverSamples < 0 {
		return errors.New("rounds and observer-samples must not be negative")
	}
	if c.Workload.ObserverInterval.Duration < 0 {
		return errors.Errorf("observer-interval %v must not be negative", c.Workload.ObserverInterval)
	}
	if c.Output != OutputStyleTable && c.Output != OutputStyleJSON {
		return errors.Errorf("unknown output style %q", c.Output)
	}
	return nil
}

// STMOptions converts the config into engine options.
func (c *Config) STMOptions() stm.Options {
	return stm.Options{
		RegionSize:            int(c.STM.RegionSize),
		StripeSize:            int(c.STM.StripeSize),
		ConflictWarnThreshold: c.STM.ConflictWarnThreshold,
	}
}

// SetupLogger creates the global logger from the [log] section.
func (c *Config) SetupLogger() error {
	lg, p, err := log.InitLogger(&c.Log, zap.AddStacktrace(zapcore.FatalLevel))
	if err != nil {
		return errors.Trace(err)
	}
	c.logger = lg
	c.logProps = p
	log.ReplaceGlobals(lg, p)
	return nil
}

// GetZapLogger gets the created zap logger.
func (c *Config) GetZapLogger() *zap.Logger {
	return c.logger
}

// Flag names understood by RegisterFlags and ApplyFlags.
const (
	FlagConfig           = "config"
	FlagLogLevel         = "log-level"
	FlagLogFile          = "log-file"
	FlagStatusAddr       = "status-addr"
	FlagOutput           = "output"
	FlagRegionSize       = "region-size"
	FlagStripeSize       = "stripe-size"
	FlagPhilosophers     = "philosophers"
	FlagRounds           = "rounds"
	FlagObserverSamples  = "observer-samples"
	FlagObserverInterval = "observer-interval"
)

// RegisterFlags adds the command line overrides of the config file to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	def := NewDefaultConfig()
	fs.String(FlagConfig, "", "config file (.toml, .yaml or .yml)")
	fs.StringP(FlagLogLevel, "L", "", "log level: debug, info, warn, error, fatal (default 'info')")
	fs.String(FlagLogFile, "", "log file path")
	fs.String(FlagStatusAddr, "", "status server address, empty to disable")
	fs.String(FlagOutput, def.Output, "report style: table or json")
	fs.String(FlagRegionSize, def.STM.RegionSize.text(), "size of the transactional region, e.g. 512 or 4KiB")
	fs.Int(FlagStripeSize, int(def.STM.StripeSize), "stripe size in bytes")
	fs.Int(FlagPhilosophers, def.Workload.Philosophers, "number of philosophers")
	fs.Int(FlagRounds, def.Workload.Rounds, "rounds per philosopher")
	fs.Int(FlagObserverSamples, def.Workload.ObserverSamples, "number of observer samples")
	fs.Duration(FlagObserverInterval, def.Workload.ObserverInterval.Duration, "pause between observer samples")
}

// ApplyFlags loads the config file named by the config flag, then overrides it with every flag set explicitly on fs.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	if path, err := fs.GetString(FlagConfig); err == nil && path != "" {
		if err = c.Load(path); err != nil {
			return err
		}
	}

	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case FlagLogLevel:
			c.Log.Level = f.Value.String()
		case FlagLogFile:
			c.Log.File.Filename = f.Value.String()
		case FlagStatusAddr:
			c.StatusAddr = f.Value.String()
		case FlagOutput:
			c.Output = f.Value.String()
		case FlagRegionSize:
			err = c.STM.RegionSize.UnmarshalText([]byte(f.Value.String()))
		case FlagStripeSize:
			var n int
			n, err = fs.GetInt(f.Name)
			c.STM.StripeSize = ByteSize(n)
		case FlagPhilosophers:
			c.Workload.Philosophers, err = fs.GetInt(f.Name)
		case FlagRounds:
			c.Workload.Rounds, err = fs.GetInt(f.Name)
		case FlagObserverSamples:
			c.Workload.ObserverSamples, err = fs.GetInt(f.Name)
		case FlagObserverInterval:
			c.Workload.ObserverInterval.Duration, err = fs.GetDuration(f.Name)
		}
	})
	return errors.Trace(err)
}

// ByteSize is a size in bytes which reads human units such as "4KiB".
type ByteSize uint64

// UnmarshalText parses a size such as "512", "512B" or "4KiB".
func (b *ByteSize) UnmarshalText(text []byte) error {
	v, err := units.RAMInBytes(string(text))
	if err != nil {
		return errors.Trace(err)
	}
	if v < 0 {
		return errors.Errorf("negative size %s", text)
	}
	*b = ByteSize(v)
	return nil
}

// MarshalText formats the size with binary units when they read back as the same size, and as a plain byte count
// otherwise.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.text()), nil
}

func (b ByteSize) text() string {
	s := b.String()
	if v, err := units.RAMInBytes(s); err == nil && ByteSize(v) == b {
		return s
	}
	return strconv.FormatUint(uint64(b), 10)
}

// String formats the size with binary units, rounded to four significant digits.
func (b ByteSize) String() string {
	return units.BytesSize(float64(b))
}

// Duration is a time.Duration which reads strings such as "100us".
type Duration struct {
	time.Duration
}

// NewDuration wraps d.
func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return errors.Trace(err)
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
