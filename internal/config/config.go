// Package config loads daemon settings from BUTTONS_* environment variables
// and command-line flags. Flags win over the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/web"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "BUTTONS"

// Config holds the daemon settings.
// Environment names are derived from the field names (BUTTONS_POLL,
// BUTTONS_PIN_A, BUTTONS_HTTP_ADDR, ...). No envconfig alt names are used,
// so unprefixed variables such as LANG are never consulted.
type Config struct {
	Poll         time.Duration `default:"50ms"`
	HTTPAddr     string        `split_words:"true" default:":80"`
	PinA         int           `split_words:"true" default:"5"`
	PinB         int           `split_words:"true" default:"6"`
	GPIODriver   string        `split_words:"true" default:"gpiocdev"`
	Lang         string        `default:"en"`
	Broker       string
	Heartbeat    time.Duration `default:"15m"`
	MetricsAddr  string        `split_words:"true"`
	WriteTimeout time.Duration `split_words:"true" default:"2s"`
	PrintState   bool          `split_words:"true"`
}

// Load reads the environment, then applies flags parsed from args
// (without the program name).
func Load(args []string) (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	fs := flag.NewFlagSet("button-sensor", flag.ContinueOnError)
	fs.DurationVar(&cfg.Poll, "poll", cfg.Poll, "Input sampling period")
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "Dashboard listen address")
	fs.IntVar(&cfg.PinA, "pin-a", cfg.PinA, "BCM pin number for button A")
	fs.IntVar(&cfg.PinB, "pin-b", cfg.PinB, "BCM pin number for button B")
	fs.StringVar(&cfg.GPIODriver, "gpio-driver", cfg.GPIODriver, `GPIO backend ("gpiocdev" or "periph")`)
	fs.StringVar(&cfg.Lang, "lang", cfg.Lang, "Dashboard locale ("+strings.Join(web.Langs(), ", ")+")")
	fs.StringVar(&cfg.Broker, "broker", cfg.Broker, "MQTT broker address (empty to disable)")
	fs.DurationVar(&cfg.Heartbeat, "heartbeat", cfg.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty to disable)")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Per-response write deadline")
	fs.BoolVar(&cfg.PrintState, "print-state", cfg.PrintState, "Print current button state and exit")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Poll <= 0 {
		errs = append(errs, fmt.Errorf("poll must be positive, got %v", c.Poll))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	if c.PinA < 0 || c.PinB < 0 {
		errs = append(errs, fmt.Errorf("pins must be non-negative, got %d and %d", c.PinA, c.PinB))
	}
	if c.PinA == c.PinB {
		errs = append(errs, fmt.Errorf("buttons A and B cannot share pin %d", c.PinA))
	}
	switch c.GPIODriver {
	case gpio.DriverGPIOCDev, gpio.DriverPeriph:
	default:
		errs = append(errs, fmt.Errorf("unknown gpio driver %q", c.GPIODriver))
	}
	if _, ok := web.LookupLabels(c.Lang); !ok {
		errs = append(errs, fmt.Errorf("unknown locale %q (have %s)", c.Lang, strings.Join(web.Langs(), ", ")))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat))
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("write-timeout must not be negative, got %v", c.WriteTimeout))
	}
	return errors.Join(errs...)
}
