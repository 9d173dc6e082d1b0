package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/valter-silva-au/crmsync/internal/core"
)

// Step label styles shared by the line printer and the TUI.
var (
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
	createStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var stepLabels = map[core.Step]string{
	core.StepFetch:        "fetch",
	core.StepParse:        "parse",
	core.StepWarning:      "warn",
	core.StepMatchPerson:  "person",
	core.StepMatchDeal:    "deal",
	core.StepCreatePerson: "+person",
	core.StepCreateDeal:   "+deal",
	core.StepAddNote:      "+note",
	core.StepDone:         "done",
}

// renderStep formats one progress line.
func renderStep(step core.Step, detail string) string {
	label, ok := stepLabels[step]
	if !ok {
		label = string(step)
	}
	label = fmt.Sprintf("%-8s", label)

	var styled string
	switch step {
	case core.StepCreatePerson, core.StepCreateDeal, core.StepAddNote:
		styled = createStyle.Render(label)
	case core.StepWarning:
		styled = warningStyle.Render(label)
	case core.StepDone:
		styled = doneStyle.Render(label)
	default:
		styled = stepStyle.Render(label)
	}
	return styled + " " + detailStyle.Render(detail)
}

// lineObserver prints each progress step as a styled line.
type lineObserver struct {
	mu sync.Mutex
	w  io.Writer
}

func newLineObserver(w io.Writer) *lineObserver {
	return &lineObserver{w: w}
}

func (o *lineObserver) Progress(step core.Step, detail string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.w, renderStep(step, detail))
}
