package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli"
	"gopkg.in/yaml.v2"

	"github.com/jdziat/simple-remote-jobs/pkg/client"
)

const defaultSettingsFile = ".predict.yml"

// Settings is the on-disk CLI configuration.
type Settings struct {
	URL         string            `yaml:"url"`
	Token       string            `yaml:"token,omitempty"`
	SessionHash string            `yaml:"session_hash,omitempty"`
	MaxWorkers  int               `yaml:"max_workers,omitempty"`
	Retries     int               `yaml:"retries,omitempty"`
	History     string            `yaml:"history,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
}

// loadSettings reads fn. A missing file yields empty settings.
func loadSettings(fn string) (*Settings, error) {
	conf := &Settings{}
	if fn == "" {
		return conf, nil
	}
	data, err := os.ReadFile(fn)
	if os.IsNotExist(err) {
		return conf, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading settings from '%s': %w", fn, err)
	}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("reading YAML settings from '%s': %w", fn, err)
	}
	return conf, nil
}

// resolveSettings loads the settings file and applies global flag overrides.
func resolveSettings(c *cli.Context) (*Settings, error) {
	conf, err := loadSettings(c.GlobalString("conf"))
	if err != nil {
		return nil, err
	}
	if u := c.GlobalString("url"); u != "" {
		conf.URL = u
	}
	if tok := c.GlobalString("token"); tok != "" {
		conf.Token = tok
	}
	if h := c.GlobalString("history"); h != "" {
		conf.History = h
	}
	return conf, nil
}

func (s *Settings) clientOptions(logger *slog.Logger) []client.Option {
	opts := []client.Option{client.WithLogger(logger)}
	if s.Token != "" {
		opts = append(opts, client.WithToken(s.Token))
	}
	if s.SessionHash != "" {
		opts = append(opts, client.WithSessionHash(s.SessionHash))
	}
	if s.MaxWorkers > 0 {
		opts = append(opts, client.MaxWorkers(s.MaxWorkers))
	}
	if s.Retries > 0 {
		rc := client.DefaultRetryConfig()
		rc.MaxAttempts = s.Retries
		opts = append(opts, client.WithSubmitRetry(rc))
	}
	for k, v := range s.Headers {
		opts = append(opts, client.WithHeader(k, v))
	}
	return opts
}

func newLogger(c *cli.Context) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.GlobalString("level"))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level})), nil
}
