// Package store holds the bounded in-memory webhook event store.
//
// Events are intentionally ephemeral: bounded by capacity and TTL, cleared on
// shutdown, never persisted. Consumers that need durable delivery should read
// events promptly through the MCP tool surface.
package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Event is one accepted webhook delivery. Owned exclusively by the store
// after Store() returns; nothing mutates it afterwards.
type Event struct {
	EventID    string         `json:"event_id"`
	Identifier string         `json:"identifier"`
	Status     string         `json:"status"`
	ReceivedAt time.Time      `json:"received_at"`
	Payload    map[string]any `json:"payload"`
	Signature  string         `json:"-"`
	Nonce      string         `json:"-"`
	Validated  bool           `json:"validated"`
}

// Stats is a point-in-time snapshot of store contents.
type Stats struct {
	TotalEvents       int           `json:"total_events"`
	UniqueIdentifiers int           `json:"unique_identifiers"`
	OldestEventAge    time.Duration `json:"oldest_event_age_ms"`
	NewestEventAge    time.Duration `json:"newest_event_age_ms"`
	ValidatedCount    int           `json:"validated_count"`
	InvalidatedCount  int           `json:"invalidated_count"`
}

// Config bounds the store.
type Config struct {
	MaxEntries    int
	TTL           time.Duration
	SweepInterval time.Duration
}

const defaultSweepInterval = 5 * time.Minute

// EventStore is a bounded, deduplicated, identifier-indexed event store.
type EventStore struct {
	mu           sync.Mutex
	events       map[string]*Event
	byIdentifier map[string]map[string]struct{}
	cfg          Config
	logger       *slog.Logger
	now          func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	runOnce sync.Once
}

// New creates an event store. Background sweeping does not run until Start.
func New(cfg Config, logger *slog.Logger) *EventStore {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	return &EventStore{
		events:       make(map[string]*Event),
		byIdentifier: make(map[string]map[string]struct{}),
		cfg:          cfg,
		logger:       logger.With("component", "event_store"),
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the periodic TTL sweep. Safe to call once per instance.
func (s *EventStore) Start() {
	s.runOnce.Do(func() {
		s.wg.Add(1)
		go s.sweepLoop()
		s.logger.Debug("event store sweep started", "interval", s.cfg.SweepInterval.String())
	})
}

// Stop cancels the sweep and drops all entries.
func (s *EventStore) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()
	s.Clear()
	s.logger.Info("event store stopped")
}

func (s *EventStore) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// Store inserts an event. Returns false for a duplicate EventID (idempotent
// no-op). At capacity the oldest ~10% of entries are evicted first.
func (s *EventStore) Store(event *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[event.EventID]; exists {
		s.logger.Debug("duplicate webhook event ignored",
			"event_id", event.EventID,
			"identifier", event.Identifier,
		)
		return false
	}

	if s.cfg.MaxEntries > 0 && len(s.events) >= s.cfg.MaxEntries {
		evict := s.cfg.MaxEntries / 10
		if evict < 1 {
			evict = 1
		}
		s.logger.Warn("event store full, evicting oldest events",
			"current_size", len(s.events),
			"max_entries", s.cfg.MaxEntries,
			"evicting", evict,
		)
		s.removeOldestLocked(evict)
	}

	s.events[event.EventID] = event
	ids, ok := s.byIdentifier[event.Identifier]
	if !ok {
		ids = make(map[string]struct{})
		s.byIdentifier[event.Identifier] = ids
	}
	ids[event.EventID] = struct{}{}

	s.logger.Info("webhook event stored",
		"event_id", event.EventID,
		"identifier", event.Identifier,
		"status", event.Status,
		"validated", event.Validated,
	)
	return true
}

// GetByIdentifier returns all events for a payment, newest first.
func (s *EventStore) GetByIdentifier(identifier string) []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byIdentifier[identifier]
	if len(ids) == 0 {
		return nil
	}
	events := make([]*Event, 0, len(ids))
	for id := range ids {
		if e, ok := s.events[id]; ok {
			events = append(events, e)
		}
	}
	sortNewestFirst(events)
	return events
}

// GetRecent returns up to limit events, newest first.
func (s *EventStore) GetRecent(limit int) []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectLocked(limit, func(*Event) bool { return true })
}

// GetValidated returns up to limit signature-verified events, newest first.
func (s *EventStore) GetValidated(limit int) []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectLocked(limit, func(e *Event) bool { return e.Validated })
}

// GetByEventID returns a single event, or nil.
func (s *EventStore) GetByEventID(eventID string) *Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[eventID]
}

func (s *EventStore) collectLocked(limit int, keep func(*Event) bool) []*Event {
	events := make([]*Event, 0, len(s.events))
	for _, e := range s.events {
		if keep(e) {
			events = append(events, e)
		}
	}
	sortNewestFirst(events)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}

// Cleanup removes entries older than the TTL. Returns the number removed.
// Also invoked synchronously by tests.
func (s *EventStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.TTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.cfg.TTL)
	removed := 0
	for id, e := range s.events {
		if e.ReceivedAt.Before(cutoff) {
			s.removeLocked(id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("event store cleanup completed",
			"removed", removed,
			"remaining", len(s.events),
		)
	}
	return removed
}

// Clear drops all entries and the identifier index.
func (s *EventStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.events)
	s.events = make(map[string]*Event)
	s.byIdentifier = make(map[string]map[string]struct{})
	if count > 0 {
		s.logger.Info("event store cleared", "cleared", count)
	}
}

// GetStats returns a snapshot of store contents.
func (s *EventStore) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		TotalEvents:       len(s.events),
		UniqueIdentifiers: len(s.byIdentifier),
	}
	now := s.now()
	first := true
	for _, e := range s.events {
		age := now.Sub(e.ReceivedAt)
		if first {
			stats.OldestEventAge = age
			stats.NewestEventAge = age
			first = false
		} else {
			if age > stats.OldestEventAge {
				stats.OldestEventAge = age
			}
			if age < stats.NewestEventAge {
				stats.NewestEventAge = age
			}
		}
		if e.Validated {
			stats.ValidatedCount++
		} else {
			stats.InvalidatedCount++
		}
	}
	return stats
}

func (s *EventStore) removeOldestLocked(count int) {
	events := make([]*Event, 0, len(s.events))
	for _, e := range s.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].ReceivedAt.Before(events[j].ReceivedAt)
	})
	if count > len(events) {
		count = len(events)
	}
	for _, e := range events[:count] {
		s.removeLocked(e.EventID)
	}
}

// removeLocked keeps the primary map and identifier index in agreement:
// deleting the last event for an identifier also deletes its index entry.
func (s *EventStore) removeLocked(eventID string) {
	e, ok := s.events[eventID]
	if !ok {
		return
	}
	delete(s.events, eventID)
	if ids, ok := s.byIdentifier[e.Identifier]; ok {
		delete(ids, eventID)
		if len(ids) == 0 {
			delete(s.byIdentifier, e.Identifier)
		}
	}
}

func sortNewestFirst(events []*Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].ReceivedAt.After(events[j].ReceivedAt)
	})
}
