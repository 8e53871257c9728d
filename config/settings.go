package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
)

// decodeOrCreate decodes the TOML file at path into v. A missing file is
// created from template and v keeps its defaults.
func decodeOrCreate(path, template string, v any) (toml.MetaData, bool, error) {
	if !fileExists(path) {
		if err := writePrivateFile(path, []byte(template)); err != nil {
			return toml.MetaData{}, false, fmt.Errorf("failed to write %s: %w", path, err)
		}
		return toml.MetaData{}, false, nil
	}
	meta, err := toml.DecodeFile(path, v)
	if err != nil {
		return meta, true, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return meta, true, nil
}

// LoadSystemConfig reads settings.toml, creating it on first run.
func LoadSystemConfig() (*SystemConfig, error) {
	cfg := DefaultSystemConfig()
	if _, _, err := decodeOrCreate(SettingsPath(), GenerateSystemConfigTemplate(), cfg); err != nil {
		return nil, err
	}
	if cfg.DataDirectory == "" {
		cfg.DataDirectory = DefaultSystemConfig().DataDirectory
	}
	return cfg, nil
}

// LoadUserConfig decodes <dataDir>/config.toml over the defaults, creating
// the file from the template when it is missing. Unknown keys are an error
// so that typos do not go unnoticed.
func LoadUserConfig(dataDir string) (*UserConfig, error) {
	cfg := DefaultUserConfig()
	defaults := cfg.Providers
	// Decoding into the defaults would append to their provider list.
	cfg.Providers = nil

	path := UserConfigPath(dataDir)
	meta, existed, err := decodeOrCreate(path, GenerateUserConfigTemplate(), cfg)
	if err != nil {
		return nil, err
	}
	if !existed {
		cfg.Providers = defaults
		return cfg, nil
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path)
	}
	return cfg, nil
}

// SaveUserConfig rewrites <dataDir>/config.toml. Comments from the template
// are not preserved.
func SaveUserConfig(cfg *UserConfig, dataDir string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode user config: %w", err)
	}
	if err := writePrivateFile(UserConfigPath(dataDir), buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write user config: %w", err)
	}
	return nil
}
