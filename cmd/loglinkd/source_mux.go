package main

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/loglink/internal/logging"
	"github.com/tinytelemetry/loglink/internal/model"
)

// DefaultMuxBuffer is the default channel buffer size for the source multiplexer.
const DefaultMuxBuffer = 50_000

// MuxConfig sizes the multiplexer for one recorder.
type MuxConfig struct {
	Buffer int
	Ranks  int // rank count of the recorder; 0 skips rank checks
}

// SourceStats counts what one source delivered.
type SourceStats struct {
	Name     string      `json:"name"`
	Lines    int         `json:"lines"`
	Unranked int         `json:"unranked"`
	Rejected int         `json:"rejected"`
	PerRank  map[int]int `json:"per_rank"`
}

// SourceMultiplexer merges every input source of one recorder into a single
// stream. Lines announced for a rank the recorder does not host are dropped
// here so they never reach the processor.
type SourceMultiplexer struct {
	ctx    context.Context
	cancel context.CancelFunc

	sources []NamedLogSource
	ranks   int
	lines   chan model.IngestEnvelope
	log     zerolog.Logger

	statsMu sync.Mutex
	stats   []SourceStats

	startOnce sync.Once
	stopOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewSourceMultiplexer(parent context.Context, sources []NamedLogSource, conf MuxConfig) *SourceMultiplexer {
	buffer := conf.Buffer
	if buffer <= 0 {
		buffer = DefaultMuxBuffer
	}
	stats := make([]SourceStats, len(sources))
	for i, src := range sources {
		stats[i] = SourceStats{Name: src.Name(), PerRank: make(map[int]int)}
	}
	ctx, cancel := context.WithCancel(parent)
	return &SourceMultiplexer{
		ctx:     ctx,
		cancel:  cancel,
		sources: sources,
		ranks:   conf.Ranks,
		lines:   make(chan model.IngestEnvelope, buffer),
		log:     logging.Component("mux"),
		stats:   stats,
	}
}

func (m *SourceMultiplexer) Start() {
	m.startOnce.Do(func() {
		if len(m.sources) == 0 {
			m.closeOutput()
			return
		}
		for i, src := range m.sources {
			m.wg.Add(1)
			go m.forward(i, src)
		}
		go func() {
			m.wg.Wait()
			m.closeOutput()
		}()
	})
}

func (m *SourceMultiplexer) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		for _, src := range m.sources {
			src.Stop()
		}
		m.wg.Wait()
		m.closeOutput()
	})
}

func (m *SourceMultiplexer) HasSources() bool { return len(m.sources) > 0 }

func (m *SourceMultiplexer) Lines() <-chan model.IngestEnvelope { return m.lines }

// Stats returns a copy of the per-source counters.
func (m *SourceMultiplexer) Stats() []SourceStats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	out := make([]SourceStats, len(m.stats))
	for i, st := range m.stats {
		st.PerRank = make(map[int]int, len(m.stats[i].PerRank))
		for rank, n := range m.stats[i].PerRank {
			st.PerRank[rank] = n
		}
		out[i] = st
	}
	return out
}

// ActiveRanks lists the ranks any source has announced lines for.
func (m *SourceMultiplexer) ActiveRanks() []int {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	seen := make(map[int]bool)
	for _, st := range m.stats {
		for rank := range st.PerRank {
			seen[rank] = true
		}
	}
	ranks := make([]int, 0, len(seen))
	for rank := range seen {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)
	return ranks
}

// admit counts env against source i and reports whether it may be forwarded.
func (m *SourceMultiplexer) admit(i int, env model.IngestEnvelope) bool {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	st := &m.stats[i]
	if !env.Ranked {
		st.Lines++
		st.Unranked++
		return true
	}
	if err := m.checkRank(env.Rank); err != nil {
		st.Rejected++
		if st.Rejected == 1 {
			m.log.Warn().Err(err).Str("source", env.Source).Msg("dropping lines for unknown rank")
		}
		return false
	}
	st.Lines++
	st.PerRank[env.Rank]++
	return true
}

func (m *SourceMultiplexer) checkRank(rank int) error {
	if m.ranks <= 0 {
		return nil
	}
	return model.CheckRank(rank, m.ranks)
}

func (m *SourceMultiplexer) forward(i int, src NamedLogSource) {
	defer m.wg.Done()

	sourceLines := src.Lines()
	for {
		select {
		case <-m.ctx.Done():
			return
		case env, ok := <-sourceLines:
			if !ok {
				return
			}
			if env.Line == "" || !m.admit(i, env) {
				continue
			}
			select {
			case m.lines <- env:
			case <-m.ctx.Done():
				return
			}
		}
	}
}

func (m *SourceMultiplexer) closeOutput() {
	m.closeOnce.Do(func() {
		close(m.lines)
	})
}
