// internal/blockchain/rpc/pool.go
package rpc

import (
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
)

// Pool представляет пул RPC узлов с round-robin выбором.
// Все узлы остаются доступными: ошибки только учитываются.
type Pool struct {
	endpoints []*Endpoint
	rotate    bool

	mu   sync.Mutex
	next int
}

// NewPool создает пул узлов. При rotate=false используется только первый URL.
func NewPool(urls []string, rotate bool, clk clock.Clock, window time.Duration, ceiling int) (*Pool, error) {
	if len(urls) == 0 {
		return nil, ErrNoEndpoints
	}
	if clk == nil {
		clk = clock.New()
	}
	if !rotate {
		urls = urls[:1]
	}

	endpoints := make([]*Endpoint, 0, len(urls))
	for _, u := range urls {
		endpoints = append(endpoints, &Endpoint{
			URL:    u,
			window: newSlidingWindow(clk, window, ceiling),
		})
	}

	return &Pool{endpoints: endpoints, rotate: rotate}, nil
}

// Next возвращает следующий узел из пула
func (p *Pool) Next() *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	ep := p.endpoints[p.next]
	p.next = (p.next + 1) % len(p.endpoints)
	return ep
}

// Stats возвращает метрики всех узлов
func (p *Pool) Stats() []EndpointStats {
	out := make([]EndpointStats, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		out = append(out, ep.Stats())
	}
	return out
}

// Size returns the number of eligible endpoints.
func (p *Pool) Size() int {
	return len(p.endpoints)
}
