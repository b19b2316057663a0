// Copyright 2024-2026 Aiku AI

package bridge

import (
	_ "embed"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the bridge configuration. Secrets may be left empty in the
// file and supplied through the environment instead.
type Config struct {
	// Driver selects the registered platform driver pair.
	Driver string `yaml:"driver"`

	RemoteUsername string `yaml:"remote_username"`
	RemotePassword string `yaml:"remote_password"`
	LocalToken     string `yaml:"local_token"`
	// LocalGuildID is the host server whose channels mirror conversations.
	LocalGuildID string `yaml:"local_guild_id"`

	// DataDir is the root for persisted JSON documents and media caches.
	DataDir string `yaml:"data_dir"`
	// CategoryName titles the container category for relayed channels.
	CategoryName string `yaml:"category_name"`

	// BackfillCount is the minimum number of historical messages replayed
	// into a freshly added channel.
	BackfillCount int `yaml:"backfill_count"`
	// BackfillDelay is the pause between backfilled sends, respecting
	// local platform rate limits.
	BackfillDelay time.Duration `yaml:"backfill_delay"`

	// CommandSentinel prefixes control lines, e.g. ".".
	CommandSentinel string `yaml:"command_sentinel"`
	// PromptTimeout bounds the interactive code prompts in the login flow.
	PromptTimeout time.Duration `yaml:"prompt_timeout"`
	// ChoiceTimeout bounds the reaction mode-select prompt.
	ChoiceTimeout time.Duration `yaml:"choice_timeout"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess applies environment overrides for secrets, fills defaults and
// validates required fields.
func (c *Config) PostProcess() error {
	if v := os.Getenv("DMBRIDGE_REMOTE_USERNAME"); v != "" {
		c.RemoteUsername = v
	}
	if v := os.Getenv("DMBRIDGE_REMOTE_PASSWORD"); v != "" {
		c.RemotePassword = v
	}
	if v := os.Getenv("DMBRIDGE_LOCAL_TOKEN"); v != "" {
		c.LocalToken = v
	}
	if v := os.Getenv("DMBRIDGE_LOCAL_GUILD_ID"); v != "" {
		c.LocalGuildID = v
	}

	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.CategoryName == "" {
		c.CategoryName = "DM MESSAGES"
	}
	if c.BackfillCount <= 0 {
		c.BackfillCount = 5
	}
	if c.BackfillDelay <= 0 {
		c.BackfillDelay = time.Second
	}
	if c.CommandSentinel == "" {
		c.CommandSentinel = "."
	}
	if c.PromptTimeout <= 0 {
		c.PromptTimeout = 5 * time.Minute
	}
	if c.ChoiceTimeout <= 0 {
		c.ChoiceTimeout = time.Minute
	}

	switch {
	case c.RemoteUsername == "":
		return errors.New("remote_username is required")
	case c.RemotePassword == "":
		return errors.New("remote_password is required")
	case c.LocalGuildID == "":
		return errors.New("local_guild_id is required")
	}
	return nil
}

// LoadConfig reads and post-processes a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
