package config

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Source backends accepted by SOURCE.
const (
	SourceMock    = "mock"
	SourceMPU9250 = "mpu9250"
	SourceSerial  = "serial"
	SourceMQTT    = "mqtt"
	SourceReplay  = "replay"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDTracker  string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDDisplay  string

	// Topics
	TopicIMURaw   string
	TopicRotation string
	TopicCommand  string

	// Sensor source
	Source               string // mock, mpu9250, serial, mqtt or replay
	SensorRate           string // fastest, game, ui or normal
	FilterCoefficient    float64
	StrictComponentCheck bool

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	// Serial line source
	SerialPort     string
	SerialBaudRate uint

	// Recording and replay
	ReplayPath     string
	ReplayRealtime bool
	RecordPath     string

	// Timing
	MockSampleInterval    int // milliseconds
	IMUSampleInterval     int // milliseconds
	RenderInterval        int // milliseconds
	ConsoleLogInterval    int // milliseconds
	DisplayUpdateInterval int // milliseconds

	// Web Server
	WebServerPort int
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a configuration that runs the tracker on the mock source
// against a local broker.
func Default() *Config {
	return &Config{
		MQTTBroker:            "tcp://localhost:1883",
		MQTTClientIDTracker:   "head-tracker",
		MQTTClientIDProducer:  "head-tracker-imu",
		MQTTClientIDConsole:   "head-tracker-console",
		MQTTClientIDDisplay:   "head-tracker-display",
		TopicIMURaw:           "headtracker/imu/raw",
		TopicRotation:         "headtracker/rotation",
		TopicCommand:          "headtracker/command",
		Source:                SourceMock,
		SensorRate:            "game",
		FilterCoefficient:     0.98,
		IMUSPIDevice:          "/dev/spidev0.0",
		IMUCSPin:              "GPIO8",
		SerialBaudRate:        115200,
		ReplayRealtime:        true,
		MockSampleInterval:    10,
		IMUSampleInterval:     10,
		RenderInterval:        16,
		ConsoleLogInterval:    500,
		DisplayUpdateInterval: 200,
		WebServerPort:         8080,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of Default() and validates the result.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_TRACKER":
		c.MQTTClientIDTracker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_IMU_RAW":
		c.TopicIMURaw = value
	case "TOPIC_ROTATION":
		c.TopicRotation = value
	case "TOPIC_COMMAND":
		c.TopicCommand = value

	// Sensor source
	case "SOURCE":
		c.Source = strings.ToLower(value)
	case "SENSOR_RATE":
		c.SensorRate = strings.ToLower(value)
	case "FILTER_COEFFICIENT":
		k, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid FILTER_COEFFICIENT %q: %w", value, err)
		}
		if math.IsNaN(k) || k < 0 || k > 1 {
			return fmt.Errorf("FILTER_COEFFICIENT must be between 0 and 1, got %g", k)
		}
		c.FilterCoefficient = k
	case "STRICT_COMPONENT_CHECK":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid STRICT_COMPONENT_CHECK %q: %w", value, err)
		}
		c.StrictComponentCheck = b

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value

	// IMU Sensor Ranges
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_GYRO_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_GYRO_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMUGyroRange = byte(rangeVal)

	// Serial line source
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, err)
		}
		c.SerialBaudRate = uint(rate)

	// Recording and replay
	case "REPLAY_PATH":
		c.ReplayPath = value
	case "REPLAY_REALTIME":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid REPLAY_REALTIME %q: %w", value, err)
		}
		c.ReplayRealtime = b
	case "RECORD_PATH":
		c.RecordPath = value

	// Timing
	case "MOCK_SAMPLE_INTERVAL":
		return setInterval(&c.MockSampleInterval, key, value)
	case "IMU_SAMPLE_INTERVAL":
		return setInterval(&c.IMUSampleInterval, key, value)
	case "RENDER_INTERVAL":
		return setInterval(&c.RenderInterval, key, value)
	case "CONSOLE_LOG_INTERVAL":
		return setInterval(&c.ConsoleLogInterval, key, value)
	case "DISPLAY_UPDATE_INTERVAL":
		return setInterval(&c.DisplayUpdateInterval, key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port < 0 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT out of range: %d", port)
		}
		c.WebServerPort = port

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func setInterval(dst *int, key, value string) error {
	interval, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if interval <= 0 {
		return fmt.Errorf("%s must be positive, got %d", key, interval)
	}
	*dst = interval
	return nil
}

// validate checks that the fields the selected source needs are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicRotation == "" {
		return fmt.Errorf("TOPIC_ROTATION is required")
	}
	switch c.SensorRate {
	case "fastest", "game", "ui", "normal":
	default:
		return fmt.Errorf("SENSOR_RATE must be fastest, game, ui or normal, got %q", c.SensorRate)
	}

	switch c.Source {
	case SourceMock:
	case SourceMPU9250:
		if c.IMUSPIDevice == "" {
			return fmt.Errorf("IMU_SPI_DEVICE is required for SOURCE=%s", c.Source)
		}
	case SourceSerial:
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required for SOURCE=%s", c.Source)
		}
		if c.SerialBaudRate == 0 {
			return fmt.Errorf("SERIAL_BAUD_RATE is required for SOURCE=%s", c.Source)
		}
	case SourceMQTT:
		if c.TopicIMURaw == "" {
			return fmt.Errorf("TOPIC_IMU_RAW is required for SOURCE=%s", c.Source)
		}
	case SourceReplay:
		if c.ReplayPath == "" {
			return fmt.Errorf("REPLAY_PATH is required for SOURCE=%s", c.Source)
		}
	default:
		return fmt.Errorf("unknown SOURCE %q (want mock, mpu9250, serial, mqtt or replay)", c.Source)
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
