package spotcore

import "sync"

// EventPublisher fans out trade and depth events to downstream consumers
// (candle storage, websocket tiers). It is an injected collaborator with an
// explicit lifecycle, never a process-wide singleton.
//
// Implementations must either process events synchronously before returning
// or copy them; the engine does not retain the event after Publish returns.
type EventPublisher interface {
	PublishTrade(event *TradeEvent)
	PublishDepth(event *DepthEvent)
	Close() error
}

// MemoryPublisher stores events in memory, useful for testing.
type MemoryPublisher struct {
	mu     sync.RWMutex
	trades []*TradeEvent
	depths []*DepthEvent
}

// NewMemoryPublisher creates a new MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{
		trades: make([]*TradeEvent, 0),
		depths: make([]*DepthEvent, 0),
	}
}

// PublishTrade appends a copy of the event to the in-memory slice.
func (m *MemoryPublisher) PublishTrade(event *TradeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := *event
	m.trades = append(m.trades, &cpy)
}

// PublishDepth appends a copy of the event to the in-memory slice.
func (m *MemoryPublisher) PublishDepth(event *DepthEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := *event
	m.depths = append(m.depths, &cpy)
}

// TradeCount returns the number of trade events published.
func (m *MemoryPublisher) TradeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trades)
}

// TradeAt returns the trade event at the specified index.
func (m *MemoryPublisher) TradeAt(index int) *TradeEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trades[index]
}

// Depths returns a copy of all depth events published.
func (m *MemoryPublisher) Depths() []*DepthEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*DepthEvent, len(m.depths))
	copy(result, m.depths)
	return result
}

// LastDepth returns the most recent depth event for a market/side/price, or
// nil if none was published.
func (m *MemoryPublisher) LastDepth(market string, side Side, price string) *DepthEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.depths) - 1; i >= 0; i-- {
		d := m.depths[i]
		if d.Market == market && d.Side == side && d.Price == price {
			return d
		}
	}
	return nil
}

func (m *MemoryPublisher) Close() error {
	return nil
}

// DiscardPublisher drops all events.
type DiscardPublisher struct{}

// NewDiscardPublisher creates a publisher that drops everything.
func NewDiscardPublisher() *DiscardPublisher {
	return &DiscardPublisher{}
}

func (p *DiscardPublisher) PublishTrade(event *TradeEvent) {}

func (p *DiscardPublisher) PublishDepth(event *DepthEvent) {}

func (p *DiscardPublisher) Close() error {
	return nil
}
