package config

import (
	"fmt"
)

// JournalConfig defines where solve runs, commits and conflict history are
// persisted.
type JournalConfig struct {
	// Backend selects the journal type: "sqlite" or "nop".
	Backend string `json:"backend"`
	// Path is the file location of the journal database.
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *JournalConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "sqlite"
	}
	if c.Path == "" {
		c.Path = "berthd.db"
	}
}

// Validate checks mandatory fields.
func (c JournalConfig) Validate() error {
	if c.Backend != "sqlite" && c.Backend != "nop" {
		return fmt.Errorf("unknown journal backend %s", c.Backend)
	}
	if c.Backend == "sqlite" && c.Path == "" {
		return fmt.Errorf("journal path is required")
	}
	return nil
}
