package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/valter-silva-au/crmsync/internal/core"
)

// maxVisibleSteps bounds how many progress lines the view keeps on screen.
const maxVisibleSteps = 20

var (
	tuiTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	tuiPanelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	tuiHelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// progressMsg carries one pipeline step into the model.
type progressMsg struct {
	step   core.Step
	detail string
}

// finishedMsg carries the outcome of the sync run.
type finishedMsg struct {
	report *core.SyncReport
	err    error
}

var errInterrupted = errors.New("sync interrupted")

type syncModel struct {
	threadURL string
	lines     []string
	width     int

	done   bool
	report *core.SyncReport
	err    error
}

func newSyncModel(threadURL string) syncModel {
	return syncModel{threadURL: threadURL}
}

func (m syncModel) Init() tea.Cmd {
	return nil
}

func (m syncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if !m.done {
				m.err = errInterrupted
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case progressMsg:
		m.lines = append(m.lines, renderStep(msg.step, msg.detail))
		if len(m.lines) > maxVisibleSteps {
			m.lines = m.lines[len(m.lines)-maxVisibleSteps:]
		}
		return m, nil

	case finishedMsg:
		m.done = true
		m.report = msg.report
		m.err = msg.err
		return m, tea.Quit
	}

	return m, nil
}

func (m syncModel) View() string {
	var b strings.Builder
	b.WriteString(tuiTitleStyle.Render(" crmsync "))
	b.WriteString(" ")
	b.WriteString(detailStyle.Render(m.threadURL))
	b.WriteString("\n\n")

	body := strings.Join(m.lines, "\n")
	if body == "" {
		body = detailStyle.Render("starting...")
	}
	panel := tuiPanelStyle
	if m.width > 4 {
		panel = panel.Width(m.width - 4)
	}
	b.WriteString(panel.Render(body))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("Error: ") + m.err.Error() + "\n")
	case m.done && m.report != nil:
		b.WriteString(doneStyle.Render(fmt.Sprintf("%s, %d note(s) added", m.report.Result.Action, m.report.Result.NotesAdded)) + "\n")
	default:
		b.WriteString(tuiHelpStyle.Render("q: abort") + "\n")
	}
	return b.String()
}

// runSyncTUI runs req with a bubbletea progress view on stderr.
func runSyncTUI(ctx context.Context, runner core.SyncRunner, req core.SyncRequest) (*core.SyncReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newSyncModel(req.ThreadURL), tea.WithOutput(os.Stderr), tea.WithContext(ctx))
	req.Observer = core.ObserverFunc(func(step core.Step, detail string) {
		p.Send(progressMsg{step: step, detail: detail})
	})

	go func() {
		report, err := runner.Run(ctx, req)
		p.Send(finishedMsg{report: report, err: err})
	}()

	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, fmt.Errorf("running progress view: %w", err)
	}
	m, ok := final.(syncModel)
	if !ok {
		return nil, errInterrupted
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.report == nil {
		return nil, errInterrupted
	}
	return m.report, nil
}
