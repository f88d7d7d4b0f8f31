package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/codexplain/codexplain/internal/explain"
	"github.com/codexplain/codexplain/internal/playback"
	"github.com/codexplain/codexplain/utils"
	"github.com/fsnotify/fsnotify"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
	te "github.com/muesli/termenv"
)

const (
	defaultWidth      = 80
	defaultFetchLimit = 2 * time.Minute
	maxLabelWidth     = 32
)

// Session is the playback session of one analysis.
type Session interface {
	Events() <-chan playback.Event
	Snapshot() (playback.Snapshot, error)
	Start()
	Stop()
	Select(index int)
	Close() error
}

// SessionFactory creates the playback session for freshly fetched tokens.
type SessionFactory func(tokens []explain.Token) (Session, error)

var writeClipboard = clipboard.WriteAll

// NewProgram returns a new Tea program explaining code.
func NewProgram(cfg Config, code string, fetcher explain.Fetcher, newSession SessionFactory) *tea.Program {
	log.Debug("Starting codexplain", "path", cfg.Path, "watch", cfg.Watch, "glamour", cfg.GlamourEnabled)

	if cfg.GlamourStyle == styles.AutoStyle {
		if te.HasDarkBackground() {
			cfg.GlamourStyle = styles.DarkStyle
		} else {
			cfg.GlamourStyle = styles.LightStyle
		}
	}

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}

	m := newModel(cfg, code, fetcher, newSession)
	return tea.NewProgram(m, opts...)
}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type (
	// analyzedMsg carries the outcome of analysis number gen.
	analyzedMsg struct {
		gen    int
		tokens []explain.Token
		err    error
	}

	sessionEventMsg struct {
		gen   int
		event playback.Event
	}

	sessionClosedMsg struct{ gen int }

	codeRenderedMsg struct {
		code string
		out  string
	}

	sourceChangedMsg struct{}
)

// state is the top-level application state.
type state int

const (
	stateFetching state = iota
	stateReady
	stateError
)

func (s state) String() string {
	return map[state]string{
		stateFetching: "fetching explanation",
		stateReady:    "showing explanation",
		stateError:    "showing error",
	}[s]
}

type model struct {
	cfg        Config
	fetcher    explain.Fetcher
	newSession SessionFactory

	state state
	err   error
	gen   int

	code     string
	rendered string

	tokens      []explain.Token
	slots       []playback.SlotState
	session     Session
	focus       int
	highlighted int
	playing     bool
	status      string
	notice      string

	width   int
	height  int
	spinner spinner.Model
	keys    keyMap
	help    help.Model

	watcher *fsnotify.Watcher
}

func newModel(cfg Config, code string, fetcher explain.Fetcher, newSession SessionFactory) model {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchLimit
	}
	if cfg.Path != "" {
		if p, err := filepath.Abs(cfg.Path); err == nil {
			cfg.Path = p
		}
	}

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = lipgloss.NewStyle().Foreground(fuchsia)

	m := model{
		cfg:         cfg,
		fetcher:     fetcher,
		newSession:  newSession,
		state:       stateFetching,
		code:        code,
		highlighted: -1,
		width:       defaultWidth,
		spinner:     sp,
		keys:        newKeyMap(),
		help:        help.New(),
	}

	if cfg.Watch && cfg.Path != "" {
		m.initWatcher()
	}

	return m
}

func (m model) Init() tea.Cmd {
	log.Debug("Init() called", "state", m.state)

	cmds := []tea.Cmd{m.spinner.Tick, m.analyze(), m.renderCode()}
	if m.watcher != nil {
		cmds = append(cmds, m.watchFile)
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		if m.state != stateFetching {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case analyzedMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		return m.startSession(msg)

	case sessionEventMsg:
		if msg.gen != m.gen || m.session == nil {
			return m, nil
		}
		m.applyEvent(msg.event)
		return m, waitForEvent(m.gen, m.session.Events())

	case sessionClosedMsg:
		return m, nil

	case codeRenderedMsg:
		if msg.code == m.code {
			m.rendered = msg.out
		}
		return m, nil

	case sourceChangedMsg:
		return m.reload()

	case errMsg:
		log.Error("Error", "error", msg.err)
		m.notice = msg.Error()
		return m, nil
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.shutdown()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Reanalyze):
		return m.reanalyze()
	}

	if m.state != stateReady || m.session == nil {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Start):
		m.session.Start()

	case key.Matches(msg, m.keys.Stop):
		m.session.Stop()

	case key.Matches(msg, m.keys.Prev):
		if m.focus > 0 {
			m.focus--
		}

	case key.Matches(msg, m.keys.Next):
		if m.focus < len(m.tokens)-1 {
			m.focus++
		}

	case key.Matches(msg, m.keys.Play):
		if len(m.tokens) > 0 {
			m.session.Select(m.focus)
		}

	case key.Matches(msg, m.keys.Label):
		n := int(msg.String()[0] - '1')
		if n < len(m.tokens) {
			m.focus = n
			m.session.Select(n)
		}

	case key.Matches(msg, m.keys.Copy):
		if len(m.tokens) == 0 {
			break
		}
		if err := writeClipboard(m.tokens[m.focus].Explanation); err != nil {
			log.Error("Could not copy to clipboard", "error", err)
			m.notice = "Could not copy to clipboard"
			break
		}
		m.notice = "Copied explanation to clipboard"
	}

	return m, nil
}

// startSession turns fetched tokens into a playback session.
func (m model) startSession(msg analyzedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		log.Error("Analysis failed", "error", msg.err)
		m.state = stateError
		m.err = msg.err
		return m, nil
	}

	session, err := m.newSession(msg.tokens)
	if err != nil {
		log.Error("Could not create session", "error", err)
		m.state = stateError
		m.err = err
		return m, nil
	}

	m.state = stateReady
	m.err = nil
	m.tokens = msg.tokens
	m.session = session
	m.focus = 0
	m.highlighted = -1
	m.playing = false
	m.slots = make([]playback.SlotState, len(msg.tokens))
	m.status = playback.StatusReady

	if snap, err := session.Snapshot(); err == nil {
		m.status = snap.Status
		m.playing = snap.Playing
		m.highlighted = snap.Highlighted
		copy(m.slots, snap.Slots)
	}

	log.Debug("Session ready", "tokens", len(msg.tokens))
	return m, waitForEvent(m.gen, session.Events())
}

func (m *model) applyEvent(ev playback.Event) {
	switch ev := ev.(type) {
	case playback.HighlightEvent:
		m.highlighted = ev.Index
		if ev.Index >= 0 && ev.Index < len(m.tokens) {
			m.focus = ev.Index
		}
	case playback.StatusEvent:
		m.status = ev.Text
	case playback.PlayingEvent:
		m.playing = ev.Playing
	case playback.SlotEvent:
		if ev.Index >= 0 && ev.Index < len(m.slots) {
			m.slots[ev.Index] = ev.State
		}
		if ev.Err != nil {
			log.Debug("Slot failed", "index", ev.Index, "error", ev.Err)
		}
	}
}

// reanalyze drops the current session and fetches a new explanation.
func (m model) reanalyze() (tea.Model, tea.Cmd) {
	m.closeSession()

	m.gen++
	m.state = stateFetching
	m.err = nil
	m.tokens = nil
	m.slots = nil
	m.focus = 0
	m.highlighted = -1
	m.playing = false
	m.status = ""

	return m, tea.Batch(m.spinner.Tick, m.analyze())
}

// reload picks up a changed source file.
func (m model) reload() (tea.Model, tea.Cmd) {
	next := m.watchFile

	b, err := os.ReadFile(m.cfg.Path)
	if err != nil {
		log.Error("Could not read source file", "file", m.cfg.Path, "error", err)
		return m, next
	}

	code := string(b)
	if code == m.code {
		return m, next
	}

	log.Info("Source changed, re-analyzing", "file", m.cfg.Path)
	m.code = code
	m.rendered = ""

	mm, cmd := m.reanalyze()
	return mm, tea.Batch(cmd, mm.(model).renderCode(), next)
}

func (m *model) closeSession() {
	if m.session == nil {
		return
	}
	if err := m.session.Close(); err != nil {
		log.Error("Could not close session", "error", err)
	}
	m.session = nil
}

func (m *model) shutdown() {
	m.closeSession()
	if m.watcher != nil {
		if err := m.watcher.Close(); err != nil {
			log.Debug("Could not close watcher", "error", err)
		}
	}
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(m.headerView())
	b.WriteString("\n\n")
	b.WriteString(m.codeView())
	b.WriteString("\n")

	switch m.state {
	case stateFetching:
		fmt.Fprintf(&b, "  %s Analyzing code...\n", m.spinner.View())
	case stateError:
		b.WriteString(errorView(m.err))
	case stateReady:
		b.WriteString(m.labelsView())
		b.WriteString("\n")
		b.WriteString(m.explanationView())
		b.WriteString("\n")
		b.WriteString(m.statusView())
		b.WriteString("\n\n")
		b.WriteString("  " + m.help.View(m.keys))
		b.WriteString("\n")
	}

	return b.String()
}

func (m model) headerView() string {
	s := logoStyle.Render("CodeXplain")
	if m.cfg.Model != "" {
		s += " " + taglineStyle.Render("Powered by "+m.cfg.Model)
	}
	return "\n  " + s
}

func (m model) codeView() string {
	if m.rendered != "" {
		return m.rendered
	}
	return indent(m.code, 2)
}

// labelsView lays the token labels out in rows that fit the window.
func (m model) labelsView() string {
	if len(m.tokens) == 0 {
		return ""
	}

	avail := max(m.width-4, 10)

	var (
		rows []string
		row  []string
		used int
	)

	for i, tok := range m.tokens {
		label := m.labelView(i, tok)
		w := lipgloss.Width(label)

		if len(row) > 0 && used+1+w > avail {
			rows = append(rows, strings.Join(row, " "))
			row, used = nil, 0
		}
		if len(row) > 0 {
			used++
		}
		row = append(row, label)
		used += w
	}
	rows = append(rows, strings.Join(row, " "))

	return indent(strings.Join(rows, "\n\n"), 2)
}

func (m model) labelView(i int, tok explain.Token) string {
	text := runewidth.Truncate(strings.Join(strings.Fields(tok.Token), " "), maxLabelWidth, "…")

	style := labelStyle.Background(labelColor(i))

	if i < len(m.slots) && m.slots[i] == playback.SlotErrored {
		style = style.Strikethrough(true)
	}
	if i == m.highlighted {
		style = style.Bold(true)
		text = "▶ " + text
	}
	if i == m.focus {
		style = style.Underline(true)
	}

	return style.Render(text)
}

// explanationView shows the focused label's explanation.
func (m model) explanationView() string {
	if len(m.tokens) == 0 || m.focus >= len(m.tokens) {
		return ""
	}

	width := max(m.width-8, 20)
	text := wordwrap.String(m.tokens[m.focus].Explanation, width)
	return indent(explanationStyle.Render(text), 2)
}

func (m model) statusView() string {
	s := "  " + statusStyle.Render(m.status)
	if m.notice != "" {
		s += "  " + noticeStyle.Render(m.notice)
	}
	return s
}

func errorView(err error) string {
	msg := "press r to retry or q to quit"
	if errors.Is(err, explain.ErrEmptyInput) {
		msg = "press q to quit"
	}
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle.Render("ERROR"),
		err,
		subtleStyle.Render(msg),
	)
	return "\n" + indent(s, 3)
}

// COMMANDS

func (m model) analyze() tea.Cmd {
	var (
		gen     = m.gen
		code    = m.code
		fetcher = m.fetcher
		timeout = m.cfg.FetchTimeout
	)

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		start := time.Now()
		tokens, err := fetcher.Fetch(ctx, code)
		log.Debug("Analysis finished", "gen", gen, "tokens", len(tokens), "took", time.Since(start), "error", err)

		return analyzedMsg{gen: gen, tokens: tokens, err: err}
	}
}

func waitForEvent(gen int, events <-chan playback.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return sessionClosedMsg{gen: gen}
		}
		return sessionEventMsg{gen: gen, event: ev}
	}
}

func (m model) renderCode() tea.Cmd {
	code := m.code
	cfg := m.cfg

	return func() tea.Msg {
		out, err := glamourRender(cfg, code)
		if err != nil {
			log.Error("error rendering with Glamour", "error", err)
			return errMsg{err}
		}
		return codeRenderedMsg{code: code, out: out}
	}
}

// glamourRender renders code as a highlighted code block.
func glamourRender(cfg Config, code string) (string, error) {
	if !cfg.GlamourEnabled {
		return indent(code, 2), nil
	}

	r, err := glamour.NewTermRenderer(
		utils.GlamourStyle(cfg.GlamourStyle, true),
		glamour.WithWordWrap(int(cfg.GlamourMaxWidth)), //nolint:gosec
	)
	if err != nil {
		return "", fmt.Errorf("error creating glamour renderer: %w", err)
	}

	out, err := r.Render(utils.WrapCodeBlock(code, utils.Language(cfg.Path)))
	if err != nil {
		return "", fmt.Errorf("error rendering code: %w", err)
	}
	return out, nil
}

func (m *model) initWatcher() {
	var err error
	m.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		log.Error("error creating fsnotify watcher", "error", err)
	}
}

func (m model) watchFile() tea.Msg {
	dir := filepath.Dir(m.cfg.Path)

	if err := m.watcher.Add(dir); err != nil {
		log.Error("error adding dir to fsnotify watcher", "error", err)
		return nil
	}

	log.Info("fsnotify watching dir", "dir", dir)

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != m.cfg.Path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			return sourceChangedMsg{}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", dir, "error", err)
		}
	}
}

// ETC

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(strings.TrimRight(s, "\n"), "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
