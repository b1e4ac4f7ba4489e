package main

import (
	"encoding/json"
	"fmt"
	"os"

	"lv-tradecore/internal/groups"
	"lv-tradecore/internal/model"
	"lv-tradecore/internal/store"
	"lv-tradecore/internal/types"

	"gopkg.in/yaml.v3"
)

// seed is the fixture file used with STORE_DRIVER=memory.
type seed struct {
	Groups   []model.Group                  `json:"groups"`
	External []model.ExternalInstrumentInfo `json:"external"`
	Accounts []model.Account                `json:"accounts"`
}

// loadSeed reads YAML and re-decodes it as JSON so decimal fields accept
// both numbers and strings.
func loadSeed(path string) (seed, error) {
	var s seed
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read seed: %w", err)
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return s, fmt.Errorf("parse seed: %w", err)
	}
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return s, fmt.Errorf("convert seed: %w", err)
	}
	if err := json.Unmarshal(asJSON, &s); err != nil {
		return s, fmt.Errorf("decode seed: %w", err)
	}
	return s, nil
}

func (s seed) apply(src *groups.StaticSource, mem *store.Memory) {
	for _, g := range s.Groups {
		if g.Routing == "" {
			g.Routing = types.RoutingLocal
		}
		for sym, inst := range g.Instruments {
			if inst.Symbol == "" {
				inst.Symbol = sym
				g.Instruments[sym] = inst
			}
		}
		src.PutGroup(g)
	}
	for _, e := range s.External {
		src.PutExternal(e)
	}
	for _, a := range s.Accounts {
		if a.Status == "" {
			a.Status = types.AccountStatusActive
		}
		mem.PutAccount(a)
	}
}
