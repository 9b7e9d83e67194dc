// Package config holds process wide settings. Defaults are overridden by
// MCULINK_* environment variables, which are overridden by flags.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/spf13/pflag"

	"github.com/robotalks/mculink/pkg/filexfer"
	"github.com/robotalks/mculink/pkg/fota"
	"github.com/robotalks/mculink/pkg/link"
	"github.com/robotalks/mculink/pkg/mcu"
	"github.com/robotalks/mculink/pkg/transport"
)

// Config is the configuration of the link and its services.
type Config struct {
	// Devices are tried in order. Empty uses transport.DefaultPaths.
	Devices   []string
	BaudRate  int
	Timeout   time.Duration
	StrictCRC bool

	BlockSize   int
	ChunkSize   int
	DownloadDir string
	UploadDir   string
	FirmwareDir string

	// MQTTURL is mqtt://host:port/topic-prefix. Empty disables the bridge.
	MQTTURL  string
	DeviceID string

	WatchdogTimeout time.Duration
}

var defaultConfig = Config{
	BaudRate:    transport.DefaultBaudRate,
	Timeout:     mcu.DefaultTimeout,
	BlockSize:   filexfer.DefaultBlockSize,
	ChunkSize:   fota.DefaultChunkSize,
	DownloadDir: ".",
	UploadDir:   ".",
	FirmwareDir: ".",
}

// env lookup, replaced in tests.
var getenv = os.Getenv

func init() {
	defaultConfig.LoadEnv()
}

// LoadEnv overrides c with MCULINK_* environment variables. Malformed
// values are ignored.
func (c *Config) LoadEnv() {
	if val := getenv("MCULINK_DEVICE"); val != "" {
		c.Devices = splitList(val)
	}
	if val, err := strconv.Atoi(getenv("MCULINK_BAUD")); err == nil && val > 0 {
		c.BaudRate = val
	}
	if val, err := strconv.Atoi(getenv("MCULINK_TIMEOUT_MS")); err == nil && val > 0 {
		c.Timeout = time.Duration(val) * time.Millisecond
	}
	if val, err := strconv.ParseBool(getenv("MCULINK_STRICT_CRC")); err == nil {
		c.StrictCRC = val
	}
	if val := getenv("MCULINK_DOWNLOAD_DIR"); val != "" {
		c.DownloadDir = val
	}
	if val := getenv("MCULINK_UPLOAD_DIR"); val != "" {
		c.UploadDir = val
	}
	if val := getenv("MCULINK_FIRMWARE_DIR"); val != "" {
		c.FirmwareDir = val
	}
	if val := getenv("MCULINK_MQTT_URL"); val != "" {
		c.MQTTURL = val
	}
	if val := getenv("MCULINK_DEVICE_ID"); val != "" {
		c.DeviceID = val
	}
}

func splitList(s string) (items []string) {
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return
}

// SetupFlags registers flags on fs bound to the default config.
func SetupFlags(fs *pflag.FlagSet) {
	defaultConfig.SetupFlags(fs)
}

// SetupFlags registers flags on fs bound to c.
func (c *Config) SetupFlags(fs *pflag.FlagSet) {
	fs.StringSliceVarP(&c.Devices, "device", "d", c.Devices, "Serial device paths or ws:// URLs to try in order.")
	fs.IntVar(&c.BaudRate, "baud", c.BaudRate, "Serial baud rate.")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "Per-call timeout.")
	fs.BoolVar(&c.StrictCRC, "strict-crc", c.StrictCRC, "Drop received frames with a bad CRC.")
	fs.IntVar(&c.BlockSize, "block-size", c.BlockSize, "File transfer block size.")
	fs.IntVar(&c.ChunkSize, "chunk-size", c.ChunkSize, "FOTA data packet size.")
	fs.StringVar(&c.DownloadDir, "download-dir", c.DownloadDir, "Where files pushed by the device are stored.")
	fs.StringVar(&c.UploadDir, "upload-dir", c.UploadDir, "Where files requested by the device are read.")
	fs.StringVar(&c.FirmwareDir, "firmware-dir", c.FirmwareDir, "Where firmware pushed by the device is stored.")
	fs.StringVar(&c.MQTTURL, "mqtt", c.MQTTURL, "MQTT bridge URL, mqtt://host:port/topic-prefix.")
	fs.StringVar(&c.DeviceID, "device-id", c.DeviceID, "Device ID on the bridge, machine ID if empty.")
	fs.DurationVar(&c.WatchdogTimeout, "watchdog", c.WatchdogTimeout, "Arm the device watchdog with this timeout while serving.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a copy of the default config.
func NewConfig() *Config {
	conf := defaultConfig
	conf.Devices = append([]string(nil), defaultConfig.Devices...)
	return &conf
}

// Validate checks the settings.
func (c *Config) Validate() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	if c.BlockSize <= 0 || c.BlockSize > filexfer.MaxBlockSize {
		return fmt.Errorf("block size must be in (0, %d]", filexfer.MaxBlockSize)
	}
	if c.ChunkSize <= 0 || c.ChunkSize > fota.MaxChunkSize {
		return fmt.Errorf("chunk size must be in (0, %d]", fota.MaxChunkSize)
	}
	if c.MQTTURL != "" {
		u, err := url.Parse(c.MQTTURL)
		if err != nil {
			return fmt.Errorf("invalid MQTT URL: %w", err)
		}
		if u.Scheme != "mqtt" && u.Scheme != "tcp" && u.Scheme != "ssl" {
			return fmt.Errorf("unknown MQTT URL scheme: %q", u.Scheme)
		}
	}
	return nil
}

// Dialer returns the transport dialer for the configured baud rate.
func (c *Config) Dialer() transport.Dialer {
	if c.BaudRate == transport.DefaultBaudRate {
		return transport.DefaultDialer
	}
	return transport.BaudDialer(c.BaudRate)
}

// NewEngine creates a link engine from the config.
func (c *Config) NewEngine() *link.Engine {
	e := link.NewEngine(c.Dialer(), c.Devices...)
	e.Decoder.Strict = c.StrictCRC
	return e
}

// NewClient creates a command client on l.
func (c *Config) NewClient(l link.Caller) *mcu.Client {
	client := mcu.NewClient(l)
	client.Timeout = c.Timeout
	return client
}

// ID returns DeviceID, or an ID derived from the machine ID.
func (c *Config) ID() string {
	if c.DeviceID != "" {
		return c.DeviceID
	}
	id, err := machineid.ProtectedID("mculink")
	if err != nil {
		host, _ := os.Hostname()
		return host
	}
	return id[:12]
}
