package dict

// Config carries the process-wide knobs spec §6 calls "Global knobs" for
// the Dictionary side, YAML-tagged in the style of friggdb.Config.
type Config struct {
	// ResizeEnabled mirrors the global enable/disable flag; set at
	// process start from config, then toggled at runtime (e.g. while
	// forked for persistence) via EnableResize/DisableResize.
	ResizeEnabled bool `yaml:"resize_enabled"`
}

// DefaultConfig matches the original's built-in default: automatic
// growth enabled.
func DefaultConfig() Config {
	return Config{ResizeEnabled: true}
}

// Apply installs cfg's values into the process-wide flags.
func (c Config) Apply() {
	if c.ResizeEnabled {
		EnableResize()
	} else {
		DisableResize()
	}
}
