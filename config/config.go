// Package config holds the operator-tunable settings, persisted as a
// JSON file so the web UI can read and update them across restarts.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Probe are the settings of the external probe tool.
type Probe struct {
	ExecutablePath string `json:"executablePath"`
	DeviceArgs     string `json:"deviceArgs"`
	Gain           int    `json:"gain"`
	DDCRate        int    `json:"ddcRate"`
	RxSigLength    int    `json:"rxSigLength"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	RetryAttempts  int    `json:"retryAttempts"`
}

// Scanning are the raster subsampling settings.
type Scanning struct {
	GSCNStepSize         int `json:"gscnStepSize"`
	MaxCandidatesPerBand int `json:"maxCandidatesPerBand"`
}

// Paths are the filesystem locations the service writes to.
type Paths struct {
	DataDirectory string `json:"dataDirectory"`
}

// UI are the presentation settings the browser frontend reads.
type UI struct {
	DefaultBand       string `json:"defaultBand"`
	RefreshIntervalMS int    `json:"refreshIntervalMs"`
	MaxLogEntries     int    `json:"maxLogEntries"`
}

// Settings is the full settings document.
type Settings struct {
	Probe    Probe    `json:"probe"`
	Scanning Scanning `json:"scanning"`
	Paths    Paths    `json:"paths"`
	UI       UI       `json:"ui"`
}

// Defaults returns the compiled-in settings.
func Defaults() Settings {
	return Settings{
		Probe: Probe{
			ExecutablePath: "/opt/rfnoc/init_ssb_block",
			DeviceArgs:     "type=x300",
			Gain:           30,
			DDCRate:        7680000,
			RxSigLength:    7680000,
			TimeoutSeconds: 60,
			RetryAttempts:  2,
		},
		Scanning: Scanning{
			GSCNStepSize:         1,
			MaxCandidatesPerBand: 50,
		},
		Paths: Paths{
			DataDirectory: "/var/lib/ssbscan/data",
		},
		UI: UI{
			DefaultBand:       "n78",
			RefreshIntervalMS: 1000,
			MaxLogEntries:     1000,
		},
	}
}

// Config is a settings document bound to its file, safe for concurrent
// use by the web layer and the sessions.
type Config struct {
	path string

	mu       sync.RWMutex
	settings Settings
}

// Load reads the settings file at path, overlaying it on the defaults.
// A missing file is not an error; the defaults apply.
func Load(path string) (*Config, error) {
	c := &Config{
		path:     path,
		settings: Defaults(),
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("unable to read config %q: %s", path, err)
	}
	// Unmarshal into the defaults, so absent fields keep their default.
	if err := json.Unmarshal(raw, &c.settings); err != nil {
		return nil, fmt.Errorf("unable to parse config %q: %s", path, err)
	}
	return c, nil
}

// Get returns a copy of the current settings.
func (c *Config) Get() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Update replaces the settings and persists them.
func (c *Config) Update(s Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.settings
	c.settings = s
	if err := c.save(); err != nil {
		c.settings = old
		return err
	}
	return nil
}

// save writes the settings atomically (temp file + rename).
func (c *Config) save() error {
	raw, err := json.MarshalIndent(c.settings, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("unable to create config directory %q: %s", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path)
}
