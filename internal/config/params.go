package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/san-kum/cestsim/internal/dynamo"
)

var scalarParams = map[string]func(c *Config, v float64){
	"b0":               func(c *Config, v float64) { c.Scanner.B0 = v },
	"rel_b1":           func(c *Config, v float64) { c.Scanner.RelB1 = v },
	"b0_inhomogeneity": func(c *Config, v float64) { c.Scanner.B0Inhomogeneity = v },
	"scale":            func(c *Config, v float64) { c.Scale = v },
	"b1":               func(c *Config, v float64) { c.Protocol.B1 = v },
	"t_p":              func(c *Config, v float64) { c.Protocol.PulseDuration = v },
	"t_d":              func(c *Config, v float64) { c.Protocol.InterPulseDelay = v },
	"t_rec":            func(c *Config, v float64) { c.Protocol.Recovery = v },
	"m0_t_rec":         func(c *Config, v float64) { c.Protocol.M0Recovery = v },
	"n_pulses":         func(c *Config, v float64) { c.Protocol.NumPulses = int(v) },
	"num_offsets":      func(c *Config, v float64) { c.Protocol.NumOffsets = int(v); c.Protocol.OffsetsPPM = nil },
	"offset_range":     func(c *Config, v float64) { c.Protocol.OffsetRange = v },
}

var poolFields = map[string]func(p *PoolConfig, v float64){
	"f":  func(p *PoolConfig, v float64) { p.F = v },
	"k":  func(p *PoolConfig, v float64) { p.K = v },
	"dw": func(p *PoolConfig, v float64) { p.DW = v },
	"r1": func(p *PoolConfig, v float64) { p.R1 = v },
	"r2": func(p *PoolConfig, v float64) { p.R2 = v },
	"t1": func(p *PoolConfig, v float64) { p.T1, p.R1 = v, 0 },
	"t2": func(p *PoolConfig, v float64) { p.T2, p.R2 = v, 0 },
}

// SetParam overrides one numeric field by name. Pool fields are addressed as
// water_<field>, cest<i>_<field> (1-based) and mt_<field>, with field one of
// f, k, dw, r1, r2, t1, t2. Setting a time clears the matching rate.
func (c *Config) SetParam(name string, v float64) error {
	if set, ok := scalarParams[name]; ok {
		set(c, v)
		return nil
	}

	prefix, field, ok := strings.Cut(name, "_")
	setField, known := poolFields[field]
	if !ok || !known {
		return fmt.Errorf("%w: unknown parameter %q", dynamo.ErrConfiguration, name)
	}

	switch {
	case prefix == "water":
		setField(&c.Water, v)
	case prefix == "mt":
		if c.MT == nil {
			return fmt.Errorf("%w: %s set but no mt pool is configured", dynamo.ErrConfiguration, name)
		}
		setField(&c.MT.PoolConfig, v)
	case strings.HasPrefix(prefix, "cest"):
		i, err := strconv.Atoi(strings.TrimPrefix(prefix, "cest"))
		if err != nil || i < 1 || i > len(c.CEST) {
			return fmt.Errorf("%w: %s addresses cest pool outside 1..%d", dynamo.ErrConfiguration, name, len(c.CEST))
		}
		setField(&c.CEST[i-1], v)
	default:
		return fmt.Errorf("%w: unknown parameter %q", dynamo.ErrConfiguration, name)
	}
	return nil
}

// ApplyParams sets every entry of params, in name order.
func (c *Config) ApplyParams(params map[string]float64) error {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if err := c.SetParam(k, params[k]); err != nil {
			return err
		}
	}
	return nil
}

// ScalarParams lists the scanner and protocol parameter names.
func ScalarParams() []string {
	names := make([]string, 0, len(scalarParams))
	for k := range scalarParams {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
