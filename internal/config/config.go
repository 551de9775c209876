package config

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/smartcrop/sensor-node/internal/model"
)

type SensorConfig struct {
	Kind model.Kind `yaml:"kind"`
	// PowerPin is the GPIO switching the sensor's supply; nil means always powered.
	PowerPin *int `yaml:"power_pin"`
	// LEDPin is the color sensor's illumination LED, switched off at start-up.
	LEDPin  *int   `yaml:"led_pin"`
	Address uint16 `yaml:"address"`
}

type Sampling struct {
	Samples                  int           `yaml:"samples"`
	ReadingInterval          time.Duration `yaml:"reading_interval"`
	CO2Attempts              int           `yaml:"co2_attempts"`
	CO2RetryInterval         time.Duration `yaml:"co2_retry_interval"`
	RequireNonZeroAirQuality *bool         `yaml:"require_nonzero_air_quality"`
	DefaultTemperature       *float64      `yaml:"default_temperature"`
	DefaultHumidity          *float64      `yaml:"default_humidity"`
}

type Schedule struct {
	Stagger time.Duration `yaml:"stagger"`
}

type Power struct {
	Settle     time.Duration `yaml:"settle"`
	ActiveHigh *bool         `yaml:"active_high"`
}

type Bus struct {
	Name string `yaml:"name"`
}

type Camera struct {
	Enabled  bool          `yaml:"enabled"`
	Command  string        `yaml:"command"`
	Dir      string        `yaml:"dir"`
	Width    int           `yaml:"width"`
	Height   int           `yaml:"height"`
	Format   string        `yaml:"format"`
	VFlip    bool          `yaml:"vflip"`
	HFlip    bool          `yaml:"hflip"`
	Settle   time.Duration `yaml:"settle"`
	TestName bool          `yaml:"test_name"`
}

type ImageCopy struct {
	Enabled   bool   `yaml:"enabled"`
	Target    string `yaml:"target"`
	KeepLocal bool   `yaml:"keep_local"`
}

type Display struct {
	Enabled  bool          `yaml:"enabled"`
	Address  uint16        `yaml:"address"`
	PageHold time.Duration `yaml:"page_hold"`
	Refresh  time.Duration `yaml:"refresh"`
}

type Storage struct {
	Database   string `yaml:"database"`
	LatestFile string `yaml:"latest_file"`
	XLSXFile   string `yaml:"xlsx_file"`
	// Retain caps the number of snapshots kept in the database; zero keeps all.
	Retain int `yaml:"retain"`
}

type Transmit struct {
	TCPAddr   string        `yaml:"tcp_addr"`
	HTTPURL   string        `yaml:"http_url"`
	Gzip      bool          `yaml:"gzip"`
	Timeout   time.Duration `yaml:"timeout"`
	OutboxDir string        `yaml:"outbox_dir"`
	// OutboxLimit caps queued payloads per transmitter; zero is unbounded.
	OutboxLimit int `yaml:"outbox_limit"`
}

type Datadog struct {
	Enabled   bool     `yaml:"enabled"`
	AgentAddr string   `yaml:"agent_addr"`
	Namespace string   `yaml:"namespace"`
	Tags      []string `yaml:"tags"`
}

type API struct {
	Port int `yaml:"port"`
}

type Notifications struct {
	NtfyTopic          string `yaml:"ntfy_topic"`
	FailureAlertCycles int    `yaml:"failure_alert_cycles"`
}

// System holds the boot integration paths used by the debug CLI.
type System struct {
	BootScript  string `yaml:"boot_script"`
	BootService string `yaml:"boot_service"`
	MainService string `yaml:"main_service"`
	User        string `yaml:"user"`
	WorkDir     string `yaml:"work_dir"`
	ExecStart   string `yaml:"exec_start"`
}

type Config struct {
	ConfigFile string        `yaml:"-"`
	EnvFile    string        `yaml:"-"`
	LogLevel   zerolog.Level `yaml:"-"`
	LogFile    string        `yaml:"-"`
	SafeMode   bool          `yaml:"-"`

	NodeID  int            `yaml:"node_id"`
	Sensors []SensorConfig `yaml:"sensors"`

	Sampling      Sampling      `yaml:"sampling"`
	Schedule      Schedule      `yaml:"schedule"`
	Power         Power         `yaml:"power"`
	Bus           Bus           `yaml:"bus"`
	Camera        Camera        `yaml:"camera"`
	ImageCopy     ImageCopy     `yaml:"image_copy"`
	Display       Display       `yaml:"display"`
	Storage       Storage       `yaml:"storage"`
	Transmit      Transmit      `yaml:"transmit"`
	Datadog       Datadog       `yaml:"datadog"`
	API           API           `yaml:"api"`
	Notifications Notifications `yaml:"notifications"`
	System        System        `yaml:"system"`
}

func Load() Config {
	var (
		configFile string
		envFile    string
		logLevel   string
		logFile    string
		safeMode   bool
	)

	flag.StringVar(&configFile, "config-file", "config.yaml", "Path to node config file")
	flag.StringVar(&envFile, "env-file", ".env", "Optional dotenv file with overrides")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&logFile, "log-file", "/var/log/sensor-node.log", "Log file path, empty for console")
	flag.BoolVar(&safeMode, "safe-mode", false, "Disable all GPIO writes")
	flag.Parse()

	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		panic("Failed to load env file: " + err.Error())
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}

	cfg := Parse(data)
	cfg.ConfigFile = configFile
	cfg.EnvFile = envFile
	cfg.LogLevel = parseLogLevel(logLevel)
	cfg.LogFile = logFile
	cfg.SafeMode = safeMode
	return cfg
}

// Parse decodes a YAML config, applies environment overrides and defaults, and
// panics if the result is invalid.
func Parse(data []byte) Config {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	cfg.validate()
	return cfg
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv("NODE_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			panic(fmt.Sprintf("NODE_ID must be an integer, got %q", v))
		}
		cfg.NodeID = id
	}
	if v := os.Getenv("NTFY_TOPIC"); v != "" {
		cfg.Notifications.NtfyTopic = v
	}
	if v := os.Getenv("DD_AGENT_ADDR"); v != "" {
		cfg.Datadog.AgentAddr = v
	}
	if v := os.Getenv("TRANSMIT_TCP_ADDR"); v != "" {
		cfg.Transmit.TCPAddr = v
	}
}

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }

func orDuration(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

func (cfg *Config) applyDefaults() {
	s := &cfg.Sampling
	if s.Samples == 0 {
		s.Samples = 10
	}
	orDuration(&s.ReadingInterval, 100*time.Millisecond)
	if s.CO2Attempts == 0 {
		s.CO2Attempts = 5
	}
	orDuration(&s.CO2RetryInterval, 100*time.Millisecond)
	if s.RequireNonZeroAirQuality == nil {
		s.RequireNonZeroAirQuality = boolPtr(true)
	}
	if s.DefaultTemperature == nil {
		s.DefaultTemperature = floatPtr(25)
	}
	if s.DefaultHumidity == nil {
		s.DefaultHumidity = floatPtr(50)
	}

	orDuration(&cfg.Schedule.Stagger, 20*time.Minute)
	orDuration(&cfg.Power.Settle, 200*time.Millisecond)
	if cfg.Power.ActiveHigh == nil {
		cfg.Power.ActiveHigh = boolPtr(true)
	}

	c := &cfg.Camera
	if c.Command == "" {
		c.Command = "rpicam-still"
	}
	if c.Dir == "" {
		c.Dir = "images"
	}
	if c.Width == 0 {
		c.Width = 1920
	}
	if c.Height == 0 {
		c.Height = 1080
	}
	if c.Format == "" {
		c.Format = "png"
	}
	orDuration(&c.Settle, 2*time.Second)

	d := &cfg.Display
	if d.Address == 0 {
		d.Address = 0x27
	}
	orDuration(&d.PageHold, 3*time.Second)
	orDuration(&d.Refresh, time.Second)

	if cfg.Storage.LatestFile == "" {
		cfg.Storage.LatestFile = "data/latest.json"
	}
	orDuration(&cfg.Transmit.Timeout, 10*time.Second)

	if cfg.Datadog.AgentAddr == "" {
		cfg.Datadog.AgentAddr = "127.0.0.1:8125"
	}
	if cfg.Datadog.Namespace == "" {
		cfg.Datadog.Namespace = "sensor_node."
	}
	if cfg.Notifications.FailureAlertCycles == 0 {
		cfg.Notifications.FailureAlertCycles = 3
	}

	sys := &cfg.System
	if sys.BootScript == "" {
		sys.BootScript = "/usr/local/bin/sensor-node-pins.sh"
	}
	if sys.BootService == "" {
		sys.BootService = "/etc/systemd/system/sensor-node-pins.service"
	}
	if sys.MainService == "" {
		sys.MainService = "/etc/systemd/system/sensor-node.service"
	}
	if sys.User == "" {
		sys.User = "pi"
	}
	if sys.WorkDir == "" {
		sys.WorkDir = "/home/pi/sensor-node"
	}
	if sys.ExecStart == "" {
		sys.ExecStart = "/usr/local/bin/sensor-node -config-file config.yaml"
	}
}

// sharedAddress lists kinds whose default I2C addresses collide.
var sharedAddress = map[model.Kind]uint16{
	model.KindAirQuality: 0x53,
	model.KindUV:         0x53,
}

func (cfg *Config) validate() {
	var (
		problems  []string
		usedPins  = map[int]string{}
		usedKinds = map[model.Kind]bool{}
		usedAddrs = map[uint16]model.Kind{}
	)

	claimPin := func(pin *int, owner string) {
		if pin == nil {
			return
		}
		if other, exists := usedPins[*pin]; exists {
			problems = append(problems, fmt.Sprintf("%s and %s both use pin %d", owner, other, *pin))
			return
		}
		usedPins[*pin] = owner
	}

	for i, s := range cfg.Sensors {
		if !s.Kind.Valid() {
			problems = append(problems, fmt.Sprintf("sensors[%d]: unknown kind %q", i, s.Kind))
			continue
		}
		if usedKinds[s.Kind] {
			problems = append(problems, fmt.Sprintf("sensors[%d]: duplicate kind %s", i, s.Kind))
		}
		usedKinds[s.Kind] = true

		claimPin(s.PowerPin, string(s.Kind)+".power_pin")
		claimPin(s.LEDPin, string(s.Kind)+".led_pin")

		addr := s.Address
		if addr == 0 {
			addr = sharedAddress[s.Kind]
		}
		if addr != 0 {
			if other, exists := usedAddrs[addr]; exists {
				problems = append(problems, fmt.Sprintf("%s and %s both use I2C address 0x%02X", s.Kind, other, addr))
			}
			usedAddrs[addr] = s.Kind
		}
	}

	if cfg.Sampling.Samples < 1 {
		problems = append(problems, "sampling.samples must be at least 1")
	}
	if cfg.Sampling.CO2Attempts < 1 {
		problems = append(problems, "sampling.co2_attempts must be at least 1")
	}
	if cfg.Schedule.Stagger <= 0 {
		problems = append(problems, "schedule.stagger must be positive")
	}
	if cfg.ImageCopy.Enabled && cfg.ImageCopy.Target == "" {
		problems = append(problems, "image_copy.target is required when image_copy is enabled")
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		panic("Invalid config: " + strings.Join(problems, "; "))
	}

	log.Debug().Int("sensors", len(cfg.Sensors)).Msg("Config validated")
}

// SensorKinds returns the configured kinds in declaration order.
func (cfg *Config) SensorKinds() []model.Kind {
	out := make([]model.Kind, 0, len(cfg.Sensors))
	for _, s := range cfg.Sensors {
		out = append(out, s.Kind)
	}
	return out
}

func (cfg *Config) CameraEnabled() bool {
	if cfg.Camera.Enabled {
		return true
	}
	for _, s := range cfg.Sensors {
		if s.Kind == model.KindCamera {
			return true
		}
	}
	return false
}
