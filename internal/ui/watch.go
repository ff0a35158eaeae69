package ui

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bnema/wlkit/output"
)

// OutputsMsg carries a fresh output snapshot into the model.
type OutputsMsg []output.Info

// SeatsMsg carries the seat summary lines.
type SeatsMsg []string

// DisconnectedMsg ends the watch when the compositor connection dies.
type DisconnectedMsg struct{ Err error }

// WatchModel renders a live table of outputs plus a seat summary, updating
// as the compositor sends changes.
type WatchModel struct {
	table table.Model
	seats []string
	err   error
}

// NewWatchModel builds the watch view.
func NewWatchModel() WatchModel {
	columns := []table.Column{
		{Title: "Output", Width: 12},
		{Title: "Resolution", Width: 14},
		{Title: "Refresh", Width: 10},
		{Title: "Position", Width: 12},
		{Title: "Scale", Width: 6},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.Bold(true).Foreground(ColorPrimary).BorderForeground(ColorSubtle)
	s.Selected = s.Selected.Foreground(ColorText).Background(ColorMuted)
	t.SetStyles(s)
	return WatchModel{table: t}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}

	case OutputsMsg:
		infos := []output.Info(msg)
		sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
		rows := make([]table.Row, 0, len(infos))
		for _, info := range infos {
			name := info.Name
			if name == "" {
				name = fmt.Sprintf("output-%d", info.ID)
			}
			res, refresh := "-", "-"
			if mode, ok := info.CurrentMode(); ok {
				res = fmt.Sprintf("%dx%d", mode.Width, mode.Height)
				refresh = fmt.Sprintf("%.2f Hz", float64(mode.Refresh)/1000)
			}
			rows = append(rows, table.Row{
				name,
				res,
				refresh,
				fmt.Sprintf("(%d, %d)", info.X, info.Y),
				fmt.Sprintf("%d", info.Scale),
			})
		}
		m.table.SetRows(rows)
		return m, nil

	case SeatsMsg:
		m.seats = msg
		return m, nil

	case DisconnectedMsg:
		m.err = msg.Err
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m WatchModel) View() string {
	view := HeaderStyle.Render("wlkit watch") + "\n"
	view += BoxStyle.Render(m.table.View()) + "\n"
	for _, s := range m.seats {
		view += TextStyle.Render(s) + "\n"
	}
	if m.err != nil {
		view += ErrorStyle.Render(fmt.Sprintf("disconnected: %v", m.err)) + "\n"
	}
	view += SubtleStyle.Render("q to quit")
	return view
}

// Err returns the disconnect error, if the watch ended on one.
func (m WatchModel) Err() error { return m.err }
