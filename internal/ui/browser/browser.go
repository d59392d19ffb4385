// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package browser is the interactive catalog browser: a bubbletea
// program that lists library models, shows a model's tags and pulls the
// chosen tag with live progress.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/otk/internal/models"
	"github.com/jeranaias/otk/internal/ui/styles"
)

// Source lists library models and their tags. *catalog.Scraper
// satisfies it.
type Source interface {
	Models(ctx context.Context, maxPages int, onPage func(page int, names []string)) []string
	Tags(ctx context.Context, name string) []string
}

// Puller downloads a model. *models.Manager satisfies it.
type Puller interface {
	Pull(ctx context.Context, name string, onProgress func(models.Progress)) error
}

// ErrNoModels is reported when the catalog returned nothing.
var ErrNoModels = errors.New("no models found in the catalog")

type state int

const (
	stateLoading state = iota
	stateModels
	stateLoadingTags
	stateTags
	statePulling
	stateDone
)

// =============================================================================
// MESSAGES
// =============================================================================

type pageMsg struct {
	page  int
	names []string
}

type modelsLoadedMsg struct{}

type tagsLoadedMsg struct {
	model string
	tags  []string
}

type pullProgressMsg struct {
	status  string
	percent float64
}

type pullDoneMsg struct {
	tag string
	err error
}

// =============================================================================
// ITEMS
// =============================================================================

type item struct {
	name      string
	installed bool
}

func (i item) Title() string { return i.name }

func (i item) Description() string {
	if i.installed {
		return "installed"
	}
	return ""
}

func (i item) FilterValue() string { return i.name }

// =============================================================================
// MODEL
// =============================================================================

// Model is the bubbletea model of the browser.
type Model struct {
	ctx      context.Context
	source   Source
	puller   Puller
	maxPages int

	installed map[string]bool
	state     state

	models  list.Model
	tags    list.Model
	spinner spinner.Model
	bar     progress.Model

	pages    chan tea.Msg
	pulls    chan tea.Msg
	selected string
	pulling  string
	status   string
	percent  float64
	pulled   []string
	err      error
}

// New creates a browser. installed names models already present so
// they can be marked in the list.
func New(ctx context.Context, source Source, puller Puller, maxPages int, installed []string) Model {
	inst := make(map[string]bool, len(installed))
	for _, n := range installed {
		inst[n] = true
		if base, _, ok := strings.Cut(n, ":"); ok {
			inst[base] = true
		}
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(styles.Cyan)

	return Model{
		ctx:       ctx,
		source:    source,
		puller:    puller,
		maxPages:  maxPages,
		installed: inst,
		state:     stateLoading,
		models:    newList("Ollama library"),
		tags:      newList("Tags"),
		spinner:   sp,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		pages:     make(chan tea.Msg, 8),
	}
}

func newList(title string) list.Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(styles.Purple).BorderLeftForeground(styles.Purple)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.Foreground(styles.Emerald).BorderLeftForeground(styles.Purple)

	l := list.New(nil, delegate, 80, 20)
	l.Title = title
	l.Styles.Title = l.Styles.Title.Background(styles.Cyan)
	l.KeyMap.Quit.SetEnabled(false)
	return l
}

// Pulled returns the tags pulled during the session.
func (m Model) Pulled() []string { return m.pulled }

// Err returns the last error shown to the user.
func (m Model) Err() error { return m.err }

// Init starts the spinner and the catalog fetch.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadModels())
}

// loadModels fetches catalog pages in the background, streaming each
// page to the list as it arrives.
func (m Model) loadModels() tea.Cmd {
	ch := m.pages
	go func() {
		defer close(ch)
		m.source.Models(m.ctx, m.maxPages, func(page int, names []string) {
			send(m.ctx, ch, pageMsg{page: page, names: names})
		})
		send(m.ctx, ch, modelsLoadedMsg{})
	}()
	return listen(ch)
}

func (m Model) loadTags(name string) tea.Cmd {
	return func() tea.Msg {
		return tagsLoadedMsg{model: name, tags: m.source.Tags(m.ctx, name)}
	}
}

// startPull runs the pull in the background. Progress events are
// dropped when the UI falls behind; the final result never is.
func (m *Model) startPull(tag string) tea.Cmd {
	ch := make(chan tea.Msg, 16)
	m.pulls = ch
	go func() {
		defer close(ch)
		err := m.puller.Pull(m.ctx, tag, func(p models.Progress) {
			select {
			case ch <- pullProgressMsg{status: p.Status, percent: p.Percent()}:
			default:
			}
		})
		send(m.ctx, ch, pullDoneMsg{tag: tag, err: err})
	}()
	return listen(ch)
}

func send(ctx context.Context, ch chan<- tea.Msg, msg tea.Msg) {
	select {
	case ch <- msg:
	case <-ctx.Done():
	}
}

// listen waits for the next background event.
func listen(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h := max(msg.Height-4, 5)
		m.models.SetSize(msg.Width, h)
		m.tags.SetSize(msg.Width, h)
		m.bar.Width = min(max(msg.Width-20, 10), 60)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case pageMsg:
		items := m.models.Items()
		for _, n := range msg.names {
			items = append(items, item{name: n, installed: m.installed[n]})
		}
		cmd := m.models.SetItems(items)
		if len(items) > 0 && m.state == stateLoading {
			m.state = stateModels
		}
		return m, tea.Batch(cmd, listen(m.pages))

	case modelsLoadedMsg:
		if m.state != stateLoading {
			return m, nil
		}
		if len(m.models.Items()) == 0 {
			m.err = ErrNoModels
			m.state = stateDone
			return m, nil
		}
		m.state = stateModels
		return m, nil

	case tagsLoadedMsg:
		if msg.model != m.selected {
			return m, nil
		}
		items := make([]list.Item, len(msg.tags))
		for i, t := range msg.tags {
			items[i] = item{name: t, installed: m.installed[t]}
		}
		m.tags.Title = "Tags of " + msg.model
		m.tags.ResetFilter()
		m.tags.Select(0)
		cmd := m.tags.SetItems(items)
		m.state = stateTags
		return m, cmd

	case pullProgressMsg:
		m.status, m.percent = msg.status, msg.percent
		return m, listen(m.pulls)

	case pullDoneMsg:
		m.state = stateDone
		m.err = msg.err
		if msg.err == nil {
			m.pulled = append(m.pulled, msg.tag)
			m.installed[msg.tag] = true
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m.updateList(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.state {
	case stateLoading, stateLoadingTags, statePulling:
		if msg.String() == "q" && m.state != statePulling {
			return m, tea.Quit
		}
		return m, nil

	case stateDone:
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "enter", "esc":
			if errors.Is(m.err, ErrNoModels) {
				return m, tea.Quit
			}
			m.err = nil
			m.state = stateModels
		}
		return m, nil
	}

	if m.activeList().FilterState() == list.Filtering {
		return m.updateList(msg)
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "esc":
		if m.state == stateTags {
			m.state = stateModels
			return m, nil
		}
	case "enter":
		sel, ok := m.activeList().SelectedItem().(item)
		if !ok {
			return m, nil
		}
		if m.state == stateModels {
			m.selected = sel.name
			m.state = stateLoadingTags
			return m, tea.Batch(m.spinner.Tick, m.loadTags(sel.name))
		}
		m.pulling = sel.name
		m.status, m.percent = "starting", -1
		m.state = statePulling
		return m, m.startPull(sel.name)
	}
	return m.updateList(msg)
}

func (m *Model) activeList() *list.Model {
	if m.state == stateTags {
		return &m.tags
	}
	return &m.models
}

func (m Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.state {
	case stateModels:
		m.models, cmd = m.models.Update(msg)
	case stateTags:
		m.tags, cmd = m.tags.Update(msg)
	}
	return m, cmd
}

// =============================================================================
// VIEW
// =============================================================================

var (
	dimStyle   = lipgloss.NewStyle().Foreground(styles.TextMuted).Padding(0, 2)
	titleStyle = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true).Padding(1, 2)
)

// View renders the current screen.
func (m Model) View() string {
	switch m.state {
	case stateLoading:
		return titleStyle.Render(m.spinner.View() + " Fetching model library...")

	case stateModels:
		return m.models.View() + "\n" + dimStyle.Render("enter: tags  /: filter  q: quit")

	case stateLoadingTags:
		return titleStyle.Render(m.spinner.View() + " Fetching tags of " + m.selected + "...")

	case stateTags:
		return m.tags.View() + "\n" + dimStyle.Render("enter: pull  esc: back  /: filter  q: quit")

	case statePulling:
		var b strings.Builder
		b.WriteString(titleStyle.Render("Pulling " + m.pulling))
		b.WriteString("\n")
		line := m.status
		if m.percent >= 0 {
			line = fmt.Sprintf("%s\n%s %5.1f%%", m.status, m.bar.ViewAs(m.percent/100), m.percent)
		}
		b.WriteString(dimStyle.Render(line))
		return b.String()

	default:
		if m.err != nil {
			return titleStyle.Render(styles.RenderError(m.err.Error())) + "\n" + dimStyle.Render("enter: back  q: quit")
		}
		last := ""
		if len(m.pulled) > 0 {
			last = m.pulled[len(m.pulled)-1]
		}
		return titleStyle.Render(styles.RenderSuccess("Pulled "+last)) + "\n" + dimStyle.Render("enter: back  q: quit")
	}
}
