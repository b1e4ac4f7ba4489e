package groups

import (
	"context"
	"sync"

	"lv-tradecore/internal/model"
)

// StaticSource serves configuration held in memory.
type StaticSource struct {
	mu       sync.RWMutex
	groups   map[string]model.Group
	external map[string]model.ExternalInstrumentInfo
}

func NewStaticSource() *StaticSource {
	return &StaticSource{groups: map[string]model.Group{}, external: map[string]model.ExternalInstrumentInfo{}}
}

func (s *StaticSource) PutGroup(g model.Group) {
	s.mu.Lock()
	s.groups[g.Name] = g
	s.mu.Unlock()
}

func (s *StaticSource) PutExternal(info model.ExternalInstrumentInfo) {
	s.mu.Lock()
	s.external[info.Symbol] = info
	s.mu.Unlock()
}

func (s *StaticSource) LoadGroup(ctx context.Context, name string) (model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[name]
	if !ok {
		return model.Group{}, ErrUnknown
	}
	return g, nil
}

func (s *StaticSource) LoadExternal(ctx context.Context, symbol string) (model.ExternalInstrumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.external[symbol]
	if !ok {
		return model.ExternalInstrumentInfo{}, ErrUnknown
	}
	return info, nil
}
