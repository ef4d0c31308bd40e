package changelog

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ppiankov/etlconv/internal/model"
)

// DefaultDomain is the domain of emitted change events
const DefaultDomain = "pedsnet.etlconv.changelog"

// Changelog compares each continuant with its last observed state.
// Entities must be evaluated oldest revision first.
type Changelog struct {
	mu     sync.Mutex
	store  Store
	domain string
	logger *slog.Logger
}

// Option configures a Changelog
type Option func(*Changelog)

// WithStore sets the identity store
func WithStore(s Store) Option {
	return func(c *Changelog) {
		if s != nil {
			c.store = s
		}
	}
}

// WithDomain sets the domain of emitted events
func WithDomain(domain string) Option {
	return func(c *Changelog) {
		if domain != "" {
			c.domain = domain
		}
	}
}

// WithLogger sets the debug logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Changelog) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a changelog with an unbounded memory store
func New(opts ...Option) *Changelog {
	c := &Changelog{
		store:  NewMemoryStore(),
		domain: DefaultDomain,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the identity store
func (c *Changelog) Store() Store {
	return c.store
}

// Reset forgets every continuant
func (c *Changelog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Reset()
}

// Evaluate records the entity and returns the change it represents.
// It returns nil for unnamed entities and for revisions that changed nothing.
func (c *Changelog) Evaluate(entity model.Entity) *model.ChangeEvent {
	if entity.Name == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := entity.Key()
	c.logger.Debug("[changelog] evaluating", "key", key.String())

	event := model.ChangeEvent{
		Labels:    []string{model.LabelDiff, model.LabelAdd},
		Domain:    c.domain,
		Name:      fmt.Sprintf("event_%s_%s", entity.Batch, entity.Name),
		Timestamp: entity.Timestamp,
		Refs: model.ChangeRefs{
			Current: eventRef(entity),
		},
	}

	prev, seen := c.store.Load(key)
	if !seen {
		c.store.Save(key, Entry{Entity: entity, Event: event})
		return &event
	}

	c.logger.Debug("[changelog] compare", "key", key.String(), "from", prev.Entity.Batch, "to", entity.Batch)

	attrs := DiffAttrs(entity.Attrs, prev.Entity.Attrs)
	refs := DiffRefs(entity.Refs, prev.Entity.Refs)
	c.logDiff(key, "attr", attrs)
	c.logDiff(key, "ref", refs)

	if len(attrs) == 0 && len(refs) == 0 {
		// Advance to the latest state but keep the last change event as the link target
		c.store.Save(key, Entry{Entity: entity, Event: prev.Event})
		return nil
	}

	previous := eventRef(prev.Entity)
	next := prev.Event.Ident()

	event.Labels = []string{model.LabelDiff, model.LabelChange}
	event.Refs.Previous = &previous
	event.Refs.Next = &next
	event.Attrs = &model.ChangeDiff{Attrs: attrs, Refs: refs}

	c.store.Save(key, Entry{Entity: entity, Event: event})
	return &event
}

// EvaluateBatch evaluates entities in order and returns the emitted events
func (c *Changelog) EvaluateBatch(entities []model.Entity) []model.ChangeEvent {
	var events []model.ChangeEvent
	for _, e := range entities {
		if event := c.Evaluate(e); event != nil {
			events = append(events, *event)
		}
	}
	return events
}

func (c *Changelog) logDiff(key model.Key, kind string, diff model.Diff) {
	for k, change := range diff {
		c.logger.Debug("[changelog] "+kind+" "+string(change.Action), "key", key.String(), kind, k)
		if change.SameIdentity {
			// Whether the referenced entity itself changed between the revisions is not resolved
			c.logger.Debug("[changelog] ref timestamps differ", "key", key.String(), "ref", k)
		}
	}
}

func eventRef(e model.Entity) model.EventRef {
	return model.EventRef{
		Domain:    e.Domain,
		Name:      e.Name,
		Batch:     e.Batch,
		Timestamp: e.Timestamp,
	}
}
