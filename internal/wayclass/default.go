package wayclass

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Default returns the built-in way polygon classification policy. See
// default.yaml's header comment and DESIGN.md for why this table is a
// best-effort reconstruction rather than the original source document.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		panic("wayclass: invalid embedded default.yaml: " + err.Error())
	}
	return &cfg
}
