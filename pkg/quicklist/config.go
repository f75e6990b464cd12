package quicklist

// Config carries the List-construction and process-wide knobs spec §6
// calls "Global knobs" for the Quicklist side (fill and compress-depth
// are per-instance; plain-node threshold remains a mutable global).
type Config struct {
	Fill             int `yaml:"fill"`
	CompressDepth    int `yaml:"compress_depth"`
	PlainNodeThreshold int `yaml:"plain_node_threshold_bytes"`
}

// DefaultConfig matches the original's defaults: a 128-element fill cap,
// compression disabled, and a 1 KiB plain-Node cutoff.
func DefaultConfig() Config {
	return Config{
		Fill:               128,
		CompressDepth:      0,
		PlainNodeThreshold: 1024,
	}
}

// Apply installs PlainNodeThreshold into the process-wide flag and
// returns a new List built from Fill/CompressDepth.
func (c Config) Apply() *List {
	SetPlainNodeThreshold(c.PlainNodeThreshold)
	return New(c.Fill, c.CompressDepth)
}
