package refdata

import (
	"context"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// yamlValue mirrors one observation in a reference data YAML file.
type yamlValue struct {
	Geography string             `koanf:"geography"`
	At        string             `koanf:"at"`
	Metrics   map[string]float64 `koanf:"metrics"`
}

// yamlSnapshot is the root of a reference data YAML file.
type yamlSnapshot struct {
	ID     string      `koanf:"id"`
	Values []yamlValue `koanf:"values"`
}

// LoadYAML builds a MemorySnapshot from a YAML file of dated observations:
//
//	id: macro-2024-q2
//	values:
//	  - geography: US-CA
//	    at: 2024-05-31T00:00:00Z
//	    metrics:
//	      unemployment_rate: 5.2
//	      house_price_index: 312.4
func LoadYAML(ctx context.Context, path string) (*MemorySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, WrapLoad(path, err)
	}

	var raw yamlSnapshot
	if err := k.Unmarshal("", &raw); err != nil {
		return nil, WrapLoad(path, err)
	}

	values := make([]Value, 0, len(raw.Values))
	for _, v := range raw.Values {
		at, err := time.Parse(time.RFC3339, v.At)
		if err != nil {
			return nil, WrapLoad(path, err)
		}
		values = append(values, Value{
			Geography: v.Geography,
			At:        at,
			Metrics:   v.Metrics,
		})
	}

	opts := []Option{}
	if raw.ID != "" {
		opts = append(opts, WithID(raw.ID))
	}
	return NewMemorySnapshot(values, opts...), nil
}
