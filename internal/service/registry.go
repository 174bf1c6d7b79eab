package service

import (
	"sync"

	"github.com/akylbek/payment-system/terminal-connector/internal/models"
)

// Registry holds the terminal sessions served by this process.
type Registry struct {
	mu        sync.RWMutex
	terminals map[string]*Terminal
}

func NewRegistry() *Registry {
	return &Registry{terminals: make(map[string]*Terminal)}
}

func (r *Registry) Add(t *Terminal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminals[t.MethodID()] = t
}

func (r *Registry) Get(methodID string) (*Terminal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.terminals[methodID]
	if !ok {
		return nil, models.ErrTerminalNotFound
	}
	return t, nil
}

// Match finds the terminal a notification belongs to. Every identifier that
// is given must match.
func (r *Registry) Match(deviceID, merchantID string) (*Terminal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.terminals {
		if deviceID != "" && t.DeviceID() != deviceID {
			continue
		}
		if merchantID != "" && t.MerchantID() != merchantID {
			continue
		}
		return t, nil
	}
	return nil, models.ErrTerminalNotFound
}

func (r *Registry) All() []*Terminal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*Terminal, 0, len(r.terminals))
	for _, t := range r.terminals {
		all = append(all, t)
	}
	return all
}

func (r *Registry) Close() {
	for _, t := range r.All() {
		t.Close()
	}
}
