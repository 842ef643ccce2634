package tui

import (
	"fmt"
	"path"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hpungsan/tabula/internal/photo"
	"github.com/hpungsan/tabula/internal/review"
)

// Session is the part of the review machine the TUI drives.
type Session interface {
	ShowNext()
	ShowPrevious()
	MarkCurrent()
	RefreshSession()
	RescanLibrary()
	OpenReview()
	RestoreSelected(photos []photo.Photo)
	DeleteSelected(photos []photo.Photo)
	ConfirmBurn()
}

// ConsentFunc answers the pending deletion consent identified by handle.
type ConsentFunc func(handle string, granted bool) error

// Model is the root bubbletea model for the review TUI.
type Model struct {
	session Session
	answer  ConsentFunc
	states  <-chan review.State

	state review.State

	// Trash screen
	cursor      int
	selected    map[int64]bool
	confirmBurn bool

	width  int
	height int

	errorMessage string
	closed       bool
}

// New creates a Model that renders every state received on states.
func New(s Session, states <-chan review.State, answer ConsentFunc) Model {
	return Model{
		session:  s,
		answer:   answer,
		states:   states,
		selected: make(map[int64]bool),
		state:    review.State{IsLoading: true},
	}
}

// Run subscribes to m and blocks until the user quits.
func Run(m *review.Machine, answer ConsentFunc) error {
	states, cancel := m.Subscribe()
	defer cancel()

	_, err := tea.NewProgram(New(m, states, answer), tea.WithAltScreen()).Run()
	return err
}

// Init starts listening for session state.
func (m Model) Init() tea.Cmd {
	return waitForState(m.states)
}

// waitForState reads the next published snapshot.
func waitForState(states <-chan review.State) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-states
		if !ok {
			return SessionClosedMsg{}
		}
		return StateMsg{State: st}
	}
}

func answerCmd(answer ConsentFunc, handle string, granted bool) tea.Cmd {
	return func() tea.Msg {
		return ConsentAnsweredMsg{Err: answer(handle, granted)}
	}
}

func clearErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case StateMsg:
		m.applyState(msg.State)
		return m, waitForState(m.states)

	case SessionClosedMsg:
		m.closed = true
		return m, tea.Quit

	case ConsentAnsweredMsg:
		if msg.Err != nil {
			m.errorMessage = msg.Err.Error()
			return m, clearErrorCmd()
		}
		return m, nil

	case ClearErrorMsg:
		m.errorMessage = ""
		return m, nil
	}

	return m, nil
}

// applyState adopts st and drops selections that left the trash.
func (m *Model) applyState(st review.State) {
	m.state = st

	for id := range m.selected {
		if !photo.Contains(st.TrashBin, id) {
			delete(m.selected, id)
		}
	}
	if m.cursor >= len(st.TrashBin) {
		m.cursor = max(0, len(st.TrashBin)-1)
	}
	if len(st.TrashBin) == 0 || st.Phase() != review.PhaseComplete {
		m.confirmBurn = false
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == KeyCtrlC || key == KeyQuit {
		return m, tea.Quit
	}

	switch m.state.Phase() {
	case review.PhaseAwaitingConsent:
		return m.handleConsentKey(key)
	case review.PhaseActive:
		return m.handleReviewKey(key)
	case review.PhaseComplete:
		return m.handleTrashKey(key)
	}

	if key == KeyRescan {
		m.session.RescanLibrary()
	}
	return m, nil
}

func (m Model) handleConsentKey(key string) (tea.Model, tea.Cmd) {
	pc := m.state.PendingConsent
	if pc == nil || m.answer == nil {
		return m, nil
	}
	switch key {
	case KeyYes:
		return m, answerCmd(m.answer, pc.Handle, true)
	case KeyNo, KeyEsc:
		return m, answerCmd(m.answer, pc.Handle, false)
	}
	return m, nil
}

func (m Model) handleReviewKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case KeyKeep, KeyRight:
		m.session.ShowNext()
	case KeyBack, KeyLeft:
		m.session.ShowPrevious()
	case KeyMark, KeyMarkAlt:
		m.session.MarkCurrent()
	case KeyRefresh:
		m.session.RefreshSession()
	case KeyRescan:
		m.session.RescanLibrary()
	case KeyTrash:
		m.session.OpenReview()
	}
	return m, nil
}

func (m Model) handleTrashKey(key string) (tea.Model, tea.Cmd) {
	bin := m.state.TrashBin

	if m.confirmBurn {
		m.confirmBurn = false
		if key == KeyYes {
			m.session.ConfirmBurn()
		}
		return m, nil
	}

	switch key {
	case KeyJ, KeyDown:
		if m.cursor < len(bin)-1 {
			m.cursor++
		}
	case KeyK, KeyUp:
		if m.cursor > 0 {
			m.cursor--
		}
	case KeySpace:
		if m.cursor < len(bin) {
			id := bin[m.cursor].ID
			if m.selected[id] {
				delete(m.selected, id)
			} else {
				m.selected[id] = true
			}
		}
	case KeyRestore:
		if picked := m.picked(); len(picked) > 0 {
			m.session.RestoreSelected(picked)
			m.clearSelection()
		}
	case KeyDelete:
		if picked := m.picked(); len(picked) > 0 {
			m.session.DeleteSelected(picked)
			m.clearSelection()
		}
	case KeyBurn:
		if len(bin) > 0 {
			m.confirmBurn = true
		}
	case KeyRefresh:
		m.session.RefreshSession()
	case KeyRescan:
		m.session.RescanLibrary()
	}
	return m, nil
}

// picked returns the selected trash entries, or the one under the cursor when
// nothing is selected.
func (m Model) picked() []photo.Photo {
	bin := m.state.TrashBin
	var out []photo.Photo
	for _, p := range bin {
		if m.selected[p.ID] {
			out = append(out, p)
		}
	}
	if len(out) == 0 && m.cursor < len(bin) {
		out = append(out, bin[m.cursor])
	}
	return out
}

func (m *Model) clearSelection() {
	m.selected = make(map[int64]bool)
}

// View renders the full TUI.
func (m Model) View() string {
	width := m.width
	if width == 0 {
		width = 80
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, DividerStyle.Render(strings.Repeat("─", width)))

	switch m.state.Phase() {
	case review.PhaseLoading:
		sections = append(sections, m.renderLoading())
	case review.PhaseAwaitingConsent:
		sections = append(sections, m.renderConsent())
	case review.PhaseComplete:
		sections = append(sections, m.renderTrash())
	default:
		sections = append(sections, m.renderReview())
	}

	sections = append(sections, DividerStyle.Render(strings.Repeat("─", width)))
	if m.errorMessage != "" {
		sections = append(sections, ErrorStyle.Render("Error: "+m.errorMessage))
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	st := m.state
	title := TitleStyle.Render("TABULA")
	status := fmt.Sprintf("  %s · marked %d · trash %d · %s",
		st.Phase(), st.SessionMarkedCount, len(st.TrashBin), strings.ToLower(string(st.CurationMode)))
	if st.IsLimitedAccess() {
		status += " · limited access"
	}
	return title + StatusStyle.Render(status)
}

func (m Model) renderLoading() string {
	st := m.state
	if !st.IsIndexing {
		return DimStyle.Render("Shuffling a new session...")
	}
	const barWidth = 30
	filled := barWidth * min(max(st.IndexingProgress, 0), 100) / 100
	bar := ProgressStyle.Render(strings.Repeat("█", filled)) + DimStyle.Render(strings.Repeat("░", barWidth-filled))
	return fmt.Sprintf("Indexing library %s %3d%%", bar, st.IndexingProgress)
}

func (m Model) renderConsent() string {
	pc := m.state.PendingConsent
	var b strings.Builder
	b.WriteString(PromptStyle.Render(fmt.Sprintf("Permanently delete %d photo(s)?", len(pc.URIs))))
	b.WriteString("\n")
	for _, uri := range pc.URIs {
		b.WriteString(DimStyle.Render("  " + path.Base(uri)))
		b.WriteString("\n")
	}
	b.WriteString("\n[y] delete  [n] cancel")
	return b.String()
}

func (m Model) renderReview() string {
	st := m.state
	side := func(p *photo.Photo) string {
		if p == nil {
			return SideStyle.Render(" ")
		}
		return SideStyle.Render(path.Base(p.URI))
	}

	var current string
	if st.Current != nil {
		current = CurrentStyle.Render(path.Base(st.Current.URI) + "\n" + DimStyle.Render(st.Current.DateString()))
	}

	cards := lipgloss.JoinHorizontal(lipgloss.Center, side(st.Previous), current, side(st.Next))
	counter := StatusStyle.Render(fmt.Sprintf("%d / %d", st.CurrentIndex, len(st.PhotoStack)))
	return counter + "\n" + cards
}

func (m Model) renderTrash() string {
	st := m.state
	if len(st.TrashBin) == 0 {
		return SuccessStyle.Render("Session complete. The trash is empty.")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Session complete. %d photo(s) in the trash.\n", len(st.TrashBin)))

	month := ""
	for i, p := range st.TrashBin {
		if label := p.MonthLabel(); label != month {
			month = label
			b.WriteString("\n" + MonthStyle.Render(label) + "\n")
		}

		box := "[ ]"
		if m.selected[p.ID] {
			box = MarkedStyle.Render("[x]")
		}
		line := fmt.Sprintf("%s %s  %s", box, path.Base(p.URI), DimStyle.Render(p.DateString()))
		if i == m.cursor {
			line = SelectedStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}

	if st.IsDeleting {
		b.WriteString("\n" + DimStyle.Render("Deleting..."))
	}
	if m.confirmBurn {
		b.WriteString("\n" + PromptStyle.Render(fmt.Sprintf("Delete all %d photo(s)? [y/N]", len(st.TrashBin))))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderFooter() string {
	var pairs [][2]string
	switch m.state.Phase() {
	case review.PhaseActive:
		pairs = [][2]string{{"l", "keep"}, {"d", "trash"}, {"h", "back"}, {"t", "review trash"}, {"r", "reshuffle"}}
	case review.PhaseComplete:
		pairs = [][2]string{{"space", "select"}, {"u", "restore"}, {"D", "delete"}, {"B", "delete all"}, {"r", "new session"}}
	case review.PhaseAwaitingConsent:
		pairs = [][2]string{{"y", "delete"}, {"n", "cancel"}}
	}
	pairs = append(pairs, [2]string{"R", "rescan"}, [2]string{"q", "quit"})

	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, FooterKeyStyle.Render(p[0])+" "+FooterDescStyle.Render(p[1]))
	}
	return strings.Join(parts, "  ")
}
