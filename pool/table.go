package pool

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/stableswap-ng/pool-deployer/selector"
)

//go:embed pools.yaml
var defaultTableYAML []byte

// ErrPoolNotConfigured is returned when the table has no parameters for a network and variant.
var ErrPoolNotConfigured = errors.New("no pool configured")

// TableEntry is the file representation of one pool. Addresses and method ids are strings so an
// empty value can stand for a placeholder, and method ids may be written as signatures.
type TableEntry struct {
	Network             string   `yaml:"network" toml:"network"`
	Variant             string   `yaml:"variant" toml:"variant"`
	Name                string   `yaml:"name" toml:"name"`
	Symbol              string   `yaml:"symbol" toml:"symbol"`
	Coins               []string `yaml:"coins" toml:"coins"`
	A                   uint64   `yaml:"A" toml:"A"`
	Fee                 uint64   `yaml:"fee" toml:"fee"`
	OffpegFeeMultiplier uint64   `yaml:"offpeg_fee_multiplier" toml:"offpeg_fee_multiplier"`
	MaExpTime           uint64   `yaml:"ma_exp_time" toml:"ma_exp_time"`
	ImplementationIndex uint64   `yaml:"implementation_index" toml:"implementation_index"`
	AssetTypes          []int    `yaml:"asset_types" toml:"asset_types"`
	MethodIDs           []string `yaml:"method_ids" toml:"method_ids"`
	Oracles             []string `yaml:"oracles" toml:"oracles"`
}

// Parameters converts the entry. It only checks that every value parses; range and alignment
// checks are left to Validate so that errors name the same fields regardless of the source.
func (e TableEntry) Parameters() (Parameters, error) {
	p := Parameters{
		Name:                  e.Name,
		Symbol:                e.Symbol,
		A:                     e.A,
		Fee:                   e.Fee,
		OffpegFeeMultiplier:   e.OffpegFeeMultiplier,
		MovingAverageHalfLife: e.MaExpTime,
		ImplementationIndex:   e.ImplementationIndex,
	}

	var err error
	if p.Coins, err = parseAddresses("coins", e.Coins); err != nil {
		return Parameters{}, err
	}
	if p.RateOracles, err = parseAddresses("oracles", e.Oracles); err != nil {
		return Parameters{}, err
	}

	p.AssetTypes = make([]AssetType, 0, len(e.AssetTypes))
	for i, t := range e.AssetTypes {
		if t < 0 || t > 255 {
			return Parameters{}, invalid(fmt.Sprintf("asset_types[%d]", i), "out of range: %d", t)
		}
		p.AssetTypes = append(p.AssetTypes, AssetType(t))
	}

	p.RateMethodIDs = make([]selector.ID, 0, len(e.MethodIDs))
	for i, m := range e.MethodIDs {
		id, perr := selector.Parse(m)
		if perr != nil {
			return Parameters{}, invalid(fmt.Sprintf("rate_method_ids[%d]", i), "%v", perr)
		}
		p.RateMethodIDs = append(p.RateMethodIDs, id)
	}

	return p, nil
}

func parseAddresses(field string, raw []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(raw))
	for i, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			out = append(out, common.Address{})
			continue
		}
		if !common.IsHexAddress(s) {
			return nil, invalid(fmt.Sprintf("%s[%d]", field, i), "not a hex address: %q", s)
		}
		out = append(out, common.HexToAddress(s))
	}

	return out, nil
}

// TableManifest is the top level of a pool table file.
type TableManifest struct {
	Pools []TableEntry `yaml:"pools" toml:"pools"`
}

type tableKey struct {
	network string
	variant Variant
}

// Table maps (network id, variant) to pool parameters. It is read-only once loaded.
type Table struct {
	pools map[tableKey]Parameters
}

// NewTable builds a table from entries. Later entries for the same network and variant replace
// earlier ones.
func NewTable(entries []TableEntry) (*Table, error) {
	t := &Table{pools: make(map[tableKey]Parameters, len(entries))}
	for i, e := range entries {
		if e.Network == "" {
			return nil, fmt.Errorf("pool %d: network is required", i)
		}
		v, err := ParseVariant(e.Variant)
		if err != nil {
			return nil, fmt.Errorf("pool %d (%s): %w", i, e.Network, err)
		}
		p, err := e.Parameters()
		if err != nil {
			return nil, fmt.Errorf("pool %d (%s/%s): %w", i, e.Network, v, err)
		}
		t.pools[tableKey{network: e.Network, variant: v}] = p
	}

	return t, nil
}

// DefaultTable returns the built-in pool table.
func DefaultTable() (*Table, error) {
	return decodeTable(defaultTableYAML, ".yaml")
}

// LoadTable reads and merges pool table files. Files ending in .toml are decoded as TOML,
// everything else as YAML.
func LoadTable(paths ...string) (*Table, error) {
	merged := &Table{pools: map[tableKey]Parameters{}}
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read pool table %s: %w", path, err)
		}

		t, err := decodeTable(b, filepath.Ext(path))
		if err != nil {
			return nil, fmt.Errorf("failed to load pool table %s: %w", path, err)
		}
		maps.Copy(merged.pools, t.pools)
	}

	return merged, nil
}

func decodeTable(b []byte, ext string) (*Table, error) {
	var manifest TableManifest
	switch strings.ToLower(ext) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&manifest); err != nil {
			return nil, err
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&manifest); err != nil {
			return nil, err
		}
	}

	return NewTable(manifest.Pools)
}

// Lookup returns a copy of the parameters for network and variant.
func (t *Table) Lookup(network string, variant Variant) (Parameters, error) {
	p, ok := t.pools[tableKey{network: network, variant: variant}]
	if !ok {
		return Parameters{}, fmt.Errorf("%w for %s/%s", ErrPoolNotConfigured, network, variant)
	}

	return p.Clone(), nil
}

// Keys returns the configured "network/variant" pairs in sorted order.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.pools))
	for k := range t.pools {
		keys = append(keys, k.network+"/"+string(k.variant))
	}
	slices.Sort(keys)

	return keys
}
