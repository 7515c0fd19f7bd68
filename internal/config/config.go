// Package config loads the YAML description of a positioner controller setup
// and turns it into transport and controller options.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/arloliu/go-anc/anc"
	"github.com/arloliu/go-anc/logger"
	"github.com/arloliu/go-anc/wiznet"
	"gopkg.in/yaml.v3"
)

// Config is the file representation of one controller behind one bridge.
//
// Zero values mean "use the package default".
type Config struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Axes        []string      `yaml:"axes"`
	FullStartup bool          `yaml:"full_startup"`
	TimePerStep time.Duration `yaml:"time_per_step"`
	LogLevel    string        `yaml:"log_level"`
	Transport   Transport     `yaml:"transport"`
}

// Transport holds the bridge timing and framing parameters.
type Transport struct {
	SettleDelay    *time.Duration `yaml:"settle_delay"`
	CloseDelay     *time.Duration `yaml:"close_delay"`
	DrainTimeout   time.Duration  `yaml:"drain_timeout"`
	ReplyTimeout   time.Duration  `yaml:"reply_timeout"`
	ConnectTimeout time.Duration  `yaml:"connect_timeout"`
	SendTimeout    time.Duration  `yaml:"send_timeout"`
	Retries        int            `yaml:"retries"`
	ReadBufferSize int            `yaml:"read_buffer_size"`
	Linebreak      string         `yaml:"linebreak"`
	Prompt         *string        `yaml:"prompt"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes and validates YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the fields that have no usable default.
func (c *Config) Validate() error {
	var errs []error

	if c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if len(c.Axes) == 0 {
		errs = append(errs, errors.New("axes are required, in controller channel order"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Transport.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries %d must not be negative", c.Transport.Retries))
	}
	if c.TimePerStep < 0 {
		errs = append(errs, errors.New("time_per_step must not be negative"))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Level returns the configured log level, InfoLevel if unset.
func (c *Config) Level() logger.LogLevel {
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}

// ClientConfig builds the transport configuration.
func (c *Config) ClientConfig(l logger.Logger) (*wiznet.ClientConfig, error) {
	port := c.Port
	if port == 0 {
		port = wiznet.DefaultPort
	}

	return wiznet.NewClientConfig(c.Host, port, c.ClientOptions(l)...)
}

// ClientOptions returns the transport options for the fields that are set.
func (c *Config) ClientOptions(l logger.Logger) []wiznet.ClientOption {
	t := c.Transport
	var opts []wiznet.ClientOption

	if l != nil {
		opts = append(opts, wiznet.WithLogger(l))
	}
	if t.SettleDelay != nil {
		opts = append(opts, wiznet.WithSettleDelay(*t.SettleDelay))
	}
	if t.CloseDelay != nil {
		opts = append(opts, wiznet.WithCloseDelay(*t.CloseDelay))
	}
	if t.DrainTimeout != 0 {
		opts = append(opts, wiznet.WithDrainTimeout(t.DrainTimeout))
	}
	if t.ReplyTimeout != 0 {
		opts = append(opts, wiznet.WithReplyTimeout(t.ReplyTimeout))
	}
	if t.ConnectTimeout != 0 {
		opts = append(opts, wiznet.WithConnectTimeout(t.ConnectTimeout))
	}
	if t.SendTimeout != 0 {
		opts = append(opts, wiznet.WithSendTimeout(t.SendTimeout))
	}
	if t.Retries != 0 {
		opts = append(opts, wiznet.WithRetries(t.Retries))
	}
	if t.ReadBufferSize != 0 {
		opts = append(opts, wiznet.WithReadBufferSize(t.ReadBufferSize))
	}
	if t.Linebreak != "" || t.Prompt != nil {
		frame := wiznet.DefaultFrame()
		if t.Linebreak != "" {
			frame.Linebreak = t.Linebreak
		}
		if t.Prompt != nil {
			frame.Prompt = *t.Prompt
		}
		opts = append(opts, wiznet.WithFrame(frame.Linebreak, frame.Prompt))
	}

	return opts
}

// ControllerOptions returns the controller options for the fields that are set.
func (c *Config) ControllerOptions(l logger.Logger) []anc.Option {
	var opts []anc.Option

	if l != nil {
		opts = append(opts, anc.WithLogger(l))
	}
	if c.TimePerStep != 0 {
		opts = append(opts, anc.WithTimePerStep(c.TimePerStep))
	}
	if c.Transport.Linebreak != "" {
		opts = append(opts, anc.WithLinebreak(c.Transport.Linebreak))
	}

	return opts
}

// NewController builds the transport client and the controller described by c.
// When FullStartup is set, every axis is put in step mode before returning.
func (c *Config) NewController(l logger.Logger) (*anc.Controller, *wiznet.Client, error) {
	clientCfg, err := c.ClientConfig(l)
	if err != nil {
		return nil, nil, err
	}

	client, err := wiznet.NewClient(clientCfg)
	if err != nil {
		return nil, nil, err
	}

	ctrl, err := anc.New(client, c.Axes, c.ControllerOptions(l)...)
	if err != nil {
		return nil, nil, err
	}

	if c.FullStartup {
		if err := ctrl.Startup(); err != nil {
			return nil, nil, fmt.Errorf("config: startup: %w", err)
		}
	}

	return ctrl, client, nil
}
