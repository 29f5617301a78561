package main

import (
	"squeeze/internal/config"
)

// commandContext shares lazily-loaded configuration across subcommands.
type commandContext struct {
	configFlag *string

	cfg        *config.Config
	configPath string
	fromFile   bool
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads configuration at most once per invocation.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := ""
	if c.configFlag != nil {
		path = *c.configFlag
	}
	cfg, resolvedPath, exists, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.configPath = resolvedPath
	c.fromFile = exists
	return cfg, nil
}
