package playbook

import (
	"sort"
	"sync"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// Playbook is the ordered, sectioned collection of knowledge items. Reads
// are safe from any goroutine and always observe a consistent snapshot;
// mutation happens only through a Merger, which holds the write lock for
// the whole delta.
type Playbook struct {
	mu     sync.RWMutex
	config Config

	items map[string]*KnowledgeItem

	// order records insertion order and gives reads a stable iteration
	// order independent of map ordering.
	order []string

	// sections maps a section label to item ids in insertion order. It is
	// a derived index, rebuildable from items alone.
	sections map[string][]string

	// deltasApplied counts every Apply, including empty deltas.
	deltasApplied int64
}

// New creates an empty playbook. Configuration violations are fatal.
func New(config Config) (*Playbook, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Playbook{
		config:   config.withDefaults(),
		items:    make(map[string]*KnowledgeItem),
		sections: make(map[string][]string),
	}, nil
}

// Restore builds a playbook from persisted items, rebuilding the sections
// index. Duplicate ids and missing required fields are rejected with
// PersistenceCorruption.
func Restore(config Config, items []KnowledgeItem) (*Playbook, error) {
	p, err := New(config)
	if err != nil {
		return nil, err
	}

	for i := range items {
		item := items[i]
		if item.ID == "" || item.Content == "" {
			return nil, errors.WithFields(
				errors.New(errors.PersistenceCorruption, "item missing required fields"),
				errors.Fields{"index": i, "id": item.ID},
			)
		}
		if _, ok := ParseKind(string(item.Kind)); !ok {
			return nil, errors.WithFields(
				errors.New(errors.PersistenceCorruption, "item has unknown kind"),
				errors.Fields{"id": item.ID, "kind": string(item.Kind)},
			)
		}
		if _, exists := p.items[item.ID]; exists {
			return nil, errors.WithFields(
				errors.New(errors.PersistenceCorruption, "duplicate item id"),
				errors.Fields{"id": item.ID},
			)
		}
		p.insertLocked(&item)
	}
	return p, nil
}

// Config returns the playbook configuration.
func (p *Playbook) Config() Config {
	return p.config
}

// Get returns a copy of the item with the given id.
func (p *Playbook) Get(id string) (KnowledgeItem, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	item, ok := p.items[id]
	if !ok {
		return KnowledgeItem{}, errors.WithFields(
			errors.New(errors.NotFound, "item not found"),
			errors.Fields{"id": id},
		)
	}
	return item.clone(), nil
}

// All returns copies of every item in insertion order.
func (p *Playbook) All() []KnowledgeItem {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]KnowledgeItem, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.items[id].clone())
	}
	return out
}

// BySection returns copies of the items in the given section, in insertion
// order.
func (p *Playbook) BySection(label string) []KnowledgeItem {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := p.sections[label]
	out := make([]KnowledgeItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.items[id].clone())
	}
	return out
}

// Sections returns the section labels present, sorted.
func (p *Playbook) Sections() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	labels := make([]string, 0, len(p.sections))
	for label := range p.sections {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Size returns the number of items.
func (p *Playbook) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// DeltasApplied returns how many deltas have been applied, including
// empty ones.
func (p *Playbook) DeltasApplied() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.deltasApplied
}

// insertLocked adds a new item. Callers must hold the write lock (or own
// the playbook exclusively, as during Restore).
func (p *Playbook) insertLocked(item *KnowledgeItem) {
	p.items[item.ID] = item
	p.order = append(p.order, item.ID)
	p.sections[item.Section] = append(p.sections[item.Section], item.ID)
}

// removeLocked deletes an item and repairs the derived indexes.
func (p *Playbook) removeLocked(id string) {
	item, ok := p.items[id]
	if !ok {
		return
	}
	delete(p.items, id)

	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}

	ids := p.sections[item.Section]
	for i, sid := range ids {
		if sid == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(p.sections, item.Section)
	} else {
		p.sections[item.Section] = ids
	}
}

// orderIndexLocked returns the insertion position of the id, used as the
// final deterministic tie-break.
func (p *Playbook) orderIndexLocked(id string) int {
	for i, oid := range p.order {
		if oid == id {
			return i
		}
	}
	return len(p.order)
}
