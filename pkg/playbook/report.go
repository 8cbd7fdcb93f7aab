package playbook

// Summary aggregates read-only playbook counters for dashboards and CLIs.
type Summary struct {
	Size    int `json:"size"`
	MaxSize int `json:"max_size"`

	// Sections is a histogram of items per section label.
	Sections map[string]int `json:"sections"`
	// Kinds is a histogram of items per kind.
	Kinds map[string]int `json:"kinds"`

	// AverageHelpfulness is the mean helpful ratio over rated items;
	// zero when nothing has been rated yet.
	AverageHelpfulness float64 `json:"average_helpfulness"`
	RatedItems         int     `json:"rated_items"`

	DeprecatedItems int   `json:"deprecated_items"`
	DeltasApplied   int64 `json:"deltas_applied"`
}

// Summary returns aggregate counters over a consistent snapshot.
func (p *Playbook) Summary() Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Summary{
		Size:          len(p.items),
		MaxSize:       p.config.MaxSize,
		Sections:      make(map[string]int, len(p.sections)),
		Kinds:         make(map[string]int),
		DeltasApplied: p.deltasApplied,
	}

	var ratioSum float64
	for _, id := range p.order {
		item := p.items[id]
		s.Sections[item.Section]++
		s.Kinds[string(item.Kind)]++
		if item.Deprecated {
			s.DeprecatedItems++
		}
		if item.TotalUses() > 0 {
			ratioSum += item.Ratio()
			s.RatedItems++
		}
	}
	if s.RatedItems > 0 {
		s.AverageHelpfulness = ratioSum / float64(s.RatedItems)
	}
	return s
}
