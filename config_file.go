package goMFA

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// LoadConfigFile decodes the TOML file at path over DefaultConfig.
// Validation is left to Builder.Build, after keys have been set.
// Durations are written as strings ("5m", "720h"). Keys not present in
// the file keep their defaults; unknown keys are an error.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}
