// Command corekv-cli drives the Dictionary and Quicklist cores by hand,
// the way cmd/tempo-cli drives tempodb: load keys and watch rehash
// progress, or push items into a list and inspect its node layout.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/lihao7264/redis/pkg/dict"
	"github.com/lihao7264/redis/pkg/dict/hashfunc"
	"github.com/lihao7264/redis/pkg/quicklist"
	logutil "github.com/lihao7264/redis/pkg/util/log"
)

type rootConfig struct {
	Dict      dict.Config      `yaml:"dict"`
	Quicklist quicklist.Config `yaml:"quicklist"`
}

func defaultRootConfig() rootConfig {
	return rootConfig{
		Dict:      dict.DefaultConfig(),
		Quicklist: quicklist.DefaultConfig(),
	}
}

func loadConfig(path string) (rootConfig, error) {
	cfg := defaultRootConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(f, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type dictLoadCmd struct {
	Count int `help:"number of UUID keys to load." default:"1000"`
}

func stringType() *dict.Type {
	return &dict.Type{
		Hash: func(key interface{}) uint64 {
			return hashfunc.Sum64String(key.(string))
		},
		KeyCompare: func(a, b interface{}) bool {
			return a.(string) == b.(string)
		},
	}
}

func (c *dictLoadCmd) Run(cfg *rootConfig) error {
	cfg.Dict.Apply()
	d := dict.Create(stringType())

	for i := 0; i < c.Count; i++ {
		k := uuid.New().String()
		if err := d.Add(k, dict.PtrValue(k)); err != nil {
			level.Warn(logutil.Logger).Log("msg", "load: key collision, skipping", "err", err)
			continue
		}
		if i%97 == 0 {
			d.StepIfNeeded()
		}
	}
	for d.IsRehashing() {
		d.Step(16)
	}

	fmt.Printf("loaded %d keys, final size %d, rehashing=%v\n", c.Count, d.Size(), d.IsRehashing())
	return nil
}

type dictScanCmd struct {
	Count int `help:"number of UUID keys to load before scanning." default:"1000"`
}

func (c *dictScanCmd) Run(cfg *rootConfig) error {
	cfg.Dict.Apply()
	d := dict.Create(stringType())
	for i := 0; i < c.Count; i++ {
		_ = d.Add(uuid.New().String(), dict.IntValue(int64(i)))
	}

	var cursor uint64
	cycles, seen := 0, 0
	for {
		cursor = d.Scan(cursor, func(_ *dict.Entry) { seen++ }, nil)
		cycles++
		if cursor == 0 {
			break
		}
	}
	fmt.Printf("scan completed in %d cursor steps, visited %d entries (dict has %d)\n", cycles, seen, d.Size())
	return nil
}

type dictSampleCmd struct {
	Count   int `help:"number of keys to load." default:"1000"`
	Samples int `help:"number of random samples to draw." default:"10"`
}

func (c *dictSampleCmd) Run(cfg *rootConfig) error {
	cfg.Dict.Apply()
	d := dict.Create(stringType())
	for i := 0; i < c.Count; i++ {
		_ = d.Add(uuid.New().String(), dict.IntValue(int64(i)))
	}

	for i := 0; i < c.Samples; i++ {
		e, ok := d.GetRandomKey()
		if !ok {
			fmt.Println("dict is empty")
			return nil
		}
		fmt.Printf("sample %d: %v\n", i, e.Key())
	}
	return nil
}

type quicklistPushCmd struct {
	Count int `help:"number of items to push." default:"1000"`
	Fill  int `help:"fill policy (negative selects a byte budget, non-negative is an element-count cap)." default:"128"`
}

func (c *quicklistPushCmd) Run(cfg *rootConfig) error {
	quicklist.SetPlainNodeThreshold(cfg.Quicklist.PlainNodeThreshold)
	l := quicklist.New(c.Fill, cfg.Quicklist.CompressDepth)

	for i := 0; i < c.Count; i++ {
		l.PushTail([]byte(uuid.New().String()))
	}
	fmt.Printf("pushed %d items into %d nodes (count=%d, len=%d)\n", c.Count, l.Len(), l.Count(), l.Len())
	return nil
}

type quicklistInspectCmd struct {
	Count    int `help:"number of items to push before inspecting." default:"1000"`
	Fill     int `help:"fill policy." default:"128"`
	Compress int `help:"compress depth." default:"1"`
}

func (c *quicklistInspectCmd) Run(cfg *rootConfig) error {
	quicklist.SetPlainNodeThreshold(cfg.Quicklist.PlainNodeThreshold)
	l := quicklist.New(c.Fill, c.Compress)
	for i := 0; i < c.Count; i++ {
		l.PushTail([]byte(uuid.New().String()))
	}

	it := l.GetIterator(quicklist.Forward)
	defer it.ReleaseIterator()
	idx := 0
	for {
		_, ok := it.Next()
		if !ok {
			break
		}
		idx++
	}
	fmt.Printf("list: count=%d len=%d fill=%d compress=%d\n", l.Count(), l.Len(), c.Fill, c.Compress)
	return nil
}

var cli struct {
	Config string `help:"optional YAML config file." type:"path"`

	Dict struct {
		Load   dictLoadCmd   `cmd:"" help:"load random keys into a Dictionary and report rehash progress."`
		Scan   dictScanCmd   `cmd:"" help:"load random keys, then drive a full Scan cycle."`
		Sample dictSampleCmd `cmd:"" help:"load random keys, then draw random samples."`
	} `cmd:"" help:"exercise the Dictionary core."`

	Quicklist struct {
		Push    quicklistPushCmd    `cmd:"" help:"push random items into a Quicklist."`
		Inspect quicklistInspectCmd `cmd:"" help:"push random items, then report node layout."`
	} `cmd:"" help:"exercise the Quicklist core."`
}

func main() {
	ctx := kong.Parse(&cli, kong.Name("corekv-cli"),
		kong.Description("drives the Dictionary and Quicklist cores by hand."))

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		level.Error(logutil.Logger).Log("msg", "failed to load config", "err", err)
		os.Exit(1)
	}

	err = ctx.Run(&cfg)
	ctx.FatalIfErrorf(err)
}
