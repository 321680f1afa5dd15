package cli

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/trek/pkg/errors"
	"github.com/matzehuels/trek/pkg/storage/backend"
)

// =============================================================================
// Configuration
// =============================================================================

// Config is the on-disk CLI configuration, read from
// ~/.config/trek/config.toml. Every field has a working default so a
// missing file is not an error.
type Config struct {
	// Backend is the storage service kind: memory, file, redis or mongo.
	Backend string `toml:"backend"`

	// Location is the service-specific storage location: a directory for
	// file, a host:port address for redis, a connection URI for mongo.
	Location string `toml:"location"`

	// Workers bounds the run worker pool for execution commands.
	Workers int `toml:"workers"`

	// OverviewCap caps the per-kind overview tables kept with each
	// trajectory's root record.
	OverviewCap int `toml:"overview_cap"`
}

// defaultConfig returns the built-in configuration: a file backend under
// the XDG data directory.
func defaultConfig() Config {
	cfg := Config{Backend: backend.ServiceFile}
	if dir, err := dataDir(); err == nil {
		cfg.Location = dir
	}
	return cfg
}

// loadConfig reads the config file at path, falling back to the default
// location when path is empty. A missing file yields the defaults; a
// malformed file is an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		dir, err := configDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(dir, "config.toml")
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return Config{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "read config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.New(errors.ErrCodeInvalidInput,
			"config %s has unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}
