// Package tui renders the SSH dashboard: open positions, the source
// leaderboard and provider health, as navigable tables refreshed on a tick.
package tui

import (
	"context"
	"sort"
	"time"

	"mintwatch/internal/cache"
	"mintwatch/internal/domain"
	"mintwatch/internal/outcome"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	refreshInterval = 5 * time.Second
	refreshTimeout  = 3 * time.Second
	maxRows         = 50
)

// PositionSource serves tracked positions and their emitted signals.
type PositionSource interface {
	Positions(status domain.PositionStatus, limit int) []domain.TrackedPosition
	Signals(source string, limit int) []domain.Signal
	Sources() []string
}

// PriceSource resolves current prices for the live price column.
type PriceSource interface {
	Resolve(ctx context.Context, chain domain.Chain, address string) (*domain.PriceSnapshot, error)
}

// ProviderSource reports breaker and rate-limit state per provider.
type ProviderSource interface {
	Providers() []domain.ProviderStatus
}

// ReputationSource serves persisted reputation records. Optional; when nil
// the leaderboard is folded live from the tracker's signals.
type ReputationSource interface {
	Leaderboard(ctx context.Context, limit int) ([]domain.ReputationRecord, error)
}

// CacheStatsSource exposes hit and flush counters for one result cache.
type CacheStatsSource interface {
	Stats() cache.Stats
}

// Services bundles everything the dashboard reads. Nil fields blank out the
// corresponding column or tab instead of crashing the session.
type Services struct {
	Positions  PositionSource
	Prices     PriceSource
	Providers  ProviderSource
	Reputation ReputationSource
	Caches     []CacheStatsSource
	Weights    outcome.Weights
	Username   string
}

type tabID int

const (
	tabPositions tabID = iota
	tabLeaderboard
	tabProviders
	tabCount
)

var tabNames = [tabCount]string{"Positions", "Leaderboard", "Providers"}

type tickMsg time.Time

// positionRow pairs a position with the price resolved for this refresh.
type positionRow struct {
	pos   domain.TrackedPosition
	price float64
	live  bool
}

type refreshMsg struct {
	positions   []positionRow
	leaderboard []domain.ReputationRecord
	providers   []domain.ProviderStatus
	caches      []cache.Stats
	at          time.Time
}

// AppModel is the bubbletea model behind each SSH session.
type AppModel struct {
	svc    Services
	active tabID
	tables [tabCount]table.Model
	caches []cache.Stats

	width     int
	height    int
	refreshed time.Time
}

func NewAppModel(svc Services) *AppModel {
	m := &AppModel{svc: svc}
	m.tables[tabPositions] = newTable([]table.Column{
		{Title: "Source", Width: 16},
		{Title: "Chain", Width: 9},
		{Title: "Token", Width: 14},
		{Title: "Age", Width: 7},
		{Title: "Entry", Width: 12},
		{Title: "Price", Width: 12},
		{Title: "ROI", Width: 8},
		{Title: "ATH", Width: 8},
		{Title: "Mentions", Width: 8},
	})
	m.tables[tabLeaderboard] = newTable([]table.Column{
		{Title: "#", Width: 3},
		{Title: "Source", Width: 20},
		{Title: "Score", Width: 6},
		{Title: "Win%", Width: 6},
		{Title: "Signals", Width: 7},
		{Title: "Mean ROI", Width: 9},
		{Title: "Sharpe", Width: 7},
		{Title: "Speed", Width: 6},
	})
	m.tables[tabProviders] = newTable([]table.Column{
		{Title: "Provider", Width: 14},
		{Title: "Breaker", Width: 9},
		{Title: "Failures", Width: 8},
		{Title: "Rate", Width: 9},
		{Title: "Burst", Width: 6},
		{Title: "Opened", Width: 11},
	})
	m.tables[tabPositions].Focus()
	return m
}

func (m *AppModel) Init() tea.Cmd {
	return m.refresh
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "right", "l":
			m.setActive((m.active + 1) % tabCount)
			return m, nil
		case "shift+tab", "left", "h":
			m.setActive((m.active + tabCount - 1) % tabCount)
			return m, nil
		case "1", "2", "3":
			m.setActive(tabID(msg.String()[0] - '1'))
			return m, nil
		case "r":
			return m, m.refresh
		}

	case tickMsg:
		return m, m.refresh

	case refreshMsg:
		m.apply(msg)
		return m, tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
	}

	var cmd tea.Cmd
	m.tables[m.active], cmd = m.tables[m.active].Update(msg)
	return m, cmd
}

// SetSize fits the tables to the terminal, leaving room for the header,
// tab bar and status line.
func (m *AppModel) SetSize(width, height int) {
	m.width = width
	m.height = height

	tableHeight := height - 7
	if tableHeight < 3 {
		tableHeight = 3
	}
	for i := range m.tables {
		m.tables[i].SetHeight(tableHeight)
		m.tables[i].SetWidth(width)
	}
}

func (m *AppModel) setActive(tab tabID) {
	if tab < 0 || tab >= tabCount {
		return
	}
	m.tables[m.active].Blur()
	m.active = tab
	m.tables[m.active].Focus()
}

// refresh gathers a consistent snapshot of all three tabs in one command so
// the UI never blocks on provider calls.
func (m *AppModel) refresh() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	msg := refreshMsg{at: time.Now()}

	if m.svc.Positions != nil {
		open := m.svc.Positions.Positions(domain.PositionOpen, maxRows)
		msg.positions = make([]positionRow, 0, len(open))
		for _, pos := range open {
			row := positionRow{pos: pos}
			if m.svc.Prices != nil {
				if snap, err := m.svc.Prices.Resolve(ctx, pos.Chain, pos.Address); err == nil && snap != nil {
					row.price, row.live = snap.PriceUSD, true
				}
			}
			msg.positions = append(msg.positions, row)
		}
	}

	msg.leaderboard = m.leaderboard(ctx)

	if m.svc.Providers != nil {
		msg.providers = m.svc.Providers.Providers()
	}
	for _, src := range m.svc.Caches {
		if src != nil {
			msg.caches = append(msg.caches, src.Stats())
		}
	}
	return msg
}

// leaderboard prefers persisted records and falls back to folding the
// in-memory signals per source.
func (m *AppModel) leaderboard(ctx context.Context) []domain.ReputationRecord {
	if m.svc.Reputation != nil {
		if records, err := m.svc.Reputation.Leaderboard(ctx, maxRows); err == nil && len(records) > 0 {
			return records
		}
	}
	if m.svc.Positions == nil {
		return nil
	}

	now := time.Now().UTC()
	var records []domain.ReputationRecord
	for _, source := range m.svc.Positions.Sources() {
		signals := m.svc.Positions.Signals(source, 0)
		if len(signals) == 0 {
			continue
		}
		records = append(records, outcome.ComputeReputation(source, signals, m.svc.Weights, now))
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Composite > records[j].Composite })
	if len(records) > maxRows {
		records = records[:maxRows]
	}
	return records
}

func (m *AppModel) apply(msg refreshMsg) {
	m.tables[tabPositions].SetRows(positionRows(msg.positions, msg.at))
	m.tables[tabLeaderboard].SetRows(leaderboardRows(msg.leaderboard))
	m.tables[tabProviders].SetRows(providerRows(msg.providers, msg.at))
	m.caches = msg.caches
	m.refreshed = msg.at
}
