package protocol

import (
	"github.com/pelletier/go-toml/v2"

	"github.com/jangala-dev/daqd/internal/daqerr"
)

// LoadConfig decodes a TOML device configuration document and validates it
// in full before returning (spec.md §4.9 "Validation").
func LoadConfig(data []byte) (*DeviceConfig, error) {
	var cfg DeviceConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, daqerr.Wrap(daqerr.ValidationFailed, "protocol.LoadConfig", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
