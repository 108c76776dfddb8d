// Package config loads the engine configuration.
//
// Sources are applied in order: built-in defaults, the YAML file, then
// AGREEMENTS_* environment variables. The result is validated against an
// embedded CUE schema and is immutable afterwards.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/roach88/agreements/internal/ir"
	"github.com/roach88/agreements/internal/ledger"
	"github.com/roach88/agreements/internal/pool"
)

//go:embed schema.cue
var schemaSource string

// Config is the complete engine configuration.
type Config struct {
	Engine       Engine     `yaml:"engine" json:"engine"`
	Contracts    Contracts  `yaml:"contracts" json:"contracts"`
	TaxRate      float64    `yaml:"tax_rate" json:"tax_rate" env:"AGREEMENTS_TAX_RATE"`
	Reputation   Reputation `yaml:"reputation" json:"reputation"`
	Database     string     `yaml:"database" json:"database" env:"AGREEMENTS_DB"`
	Inbox        string     `yaml:"inbox" json:"inbox" env:"AGREEMENTS_INBOX"`
	Outbox       string     `yaml:"outbox" json:"outbox" env:"AGREEMENTS_OUTBOX"`
	PollSchedule string     `yaml:"poll_schedule" json:"poll_schedule" env:"AGREEMENTS_POLL_SCHEDULE"`
	HTTPAddr     string     `yaml:"http_addr" json:"http_addr" env:"AGREEMENTS_HTTP_ADDR"`
	Replies      Replies    `yaml:"replies" json:"replies"`
}

// Engine identifies the engine's own account, the tax sink.
type Engine struct {
	ID        int64  `yaml:"id" json:"id" env:"AGREEMENTS_ENGINE_ID"`
	Handle    string `yaml:"handle" json:"handle" env:"AGREEMENTS_ENGINE_HANDLE"`
	Name      string `yaml:"name" json:"name"`
	Followers int64  `yaml:"followers" json:"followers"`
}

// Terms are the value per follower and the outstanding limit of one
// contract type.
type Terms struct {
	Value int64 `yaml:"value" json:"value" env:"VALUE"`
	Limit int64 `yaml:"limit" json:"limit" env:"LIMIT"`
}

// Contracts holds the terms per contract type.
type Contracts struct {
	Like    Terms `yaml:"like" json:"like" envPrefix:"AGREEMENTS_LIKE_"`
	Retweet Terms `yaml:"retweet" json:"retweet" envPrefix:"AGREEMENTS_RETWEET_"`
}

// Reputation bounds.
type Reputation struct {
	Min int64 `yaml:"min" json:"min" env:"AGREEMENTS_MIN_REPUTATION"`
	Max int64 `yaml:"max" json:"max" env:"AGREEMENTS_MAX_REPUTATION"`
}

// Replies controls outbound messages.
type Replies struct {
	// Send posts replies to the network. When false they are only printed.
	Send      bool    `yaml:"send" json:"send" env:"AGREEMENTS_SEND_REPLIES"`
	PerSecond float64 `yaml:"per_second" json:"per_second" env:"AGREEMENTS_REPLY_RATE"`
	Burst     int     `yaml:"burst" json:"burst" env:"AGREEMENTS_REPLY_BURST"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Engine: Engine{ID: 1, Handle: "AgreementEngine", Name: "Agreement Engine"},
		Contracts: Contracts{
			Like:    Terms{Value: 1, Limit: 100},
			Retweet: Terms{Value: 5, Limit: 20},
		},
		TaxRate:      0.1,
		Reputation:   Reputation{Min: -100, Max: 100},
		Database:     "agreements.db",
		Inbox:        "inbox.yaml",
		PollSchedule: "@every 60s",
		HTTPAddr:     ":8080",
		Replies:      Replies{Send: true, PerSecond: 1, Burst: 5},
	}
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates it.
// Environment variables are not consulted.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decodeYAML(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks cfg against the schema and the cross-field rules the
// schema cannot express.
func Validate(cfg Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	if err := schema.Unify(ctx.Encode(cfg)).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Reputation.Min > cfg.Reputation.Max {
		return fmt.Errorf("invalid config: reputation.min %d exceeds reputation.max %d", cfg.Reputation.Min, cfg.Reputation.Max)
	}
	if _, err := cron.ParseStandard(cfg.PollSchedule); err != nil {
		return fmt.Errorf("invalid config: poll_schedule: %w", err)
	}
	return nil
}

// EngineUser is the engine account as a gateway identity.
func (c Config) EngineUser() ir.User {
	return ir.User{ID: c.Engine.ID, Handle: c.Engine.Handle, Name: c.Engine.Name, Followers: c.Engine.Followers}
}

// Ledger returns the ledger settings.
func (c Config) Ledger() ledger.Config {
	return ledger.Config{
		Engine:        c.EngineUser(),
		MinReputation: c.Reputation.Min,
		MaxReputation: c.Reputation.Max,
	}
}

// Pool returns the contract pool settings.
func (c Config) Pool() pool.Config {
	return pool.Config{
		Like:    pool.Terms{Value: c.Contracts.Like.Value, Limit: c.Contracts.Like.Limit},
		Retweet: pool.Terms{Value: c.Contracts.Retweet.Value, Limit: c.Contracts.Retweet.Limit},
		TaxRate: c.TaxRate,
	}
}
