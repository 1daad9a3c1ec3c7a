package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

const (
	ansiUpClear = "\x1b[1A\x1b[2K"
	barWidth    = 24
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	taskStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// Table is a simple header/rows table rendered by PrintTable.
type Table struct {
	Header []string
	Rows   [][]string
}

// consoleDisplay handles terminal output. Active tasks are kept at the
// bottom of the output and redrawn in place after every other message.
// Mutable
type consoleDisplay struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	tasks   []*consoleTask
	drawn   int
	bar     progress.Model
}

// NewConsole creates a Display that writes to standard error.
func NewConsole() Display {
	return NewWriterDisplay(os.Stderr)
}

// NewWriterDisplay creates a Display that writes to the provided io.Writer.
func NewWriterDisplay(w io.Writer) Display {
	return &consoleDisplay{
		out: w,
		bar: progress.New(
			progress.WithSolidFill("6"),
			progress.WithWidth(barWidth),
			progress.WithoutPercentage(),
		),
	}
}

func (d *consoleDisplay) Notify(level Level, msg string) {
	var line string
	switch level {
	case LevelSuccess:
		line = successStyle.Render("✔ " + msg)
	default:
		line = failureStyle.Render("✘ " + msg)
	}
	d.emit(line)
}

func (d *consoleDisplay) StartTask(name string) Task {
	t := &consoleTask{d: d, name: name}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
	d.tasks = append(d.tasks, t)
	d.drawLocked()
	return t
}

func (d *consoleDisplay) Log(msg string) {
	d.mu.Lock()
	verbose := d.verbose
	d.mu.Unlock()
	if verbose {
		d.emit(dimStyle.Render(msg))
	}
}

// Print writes a message directly to the output writer, ending it with a
// newline if it lacks one.
func (d *consoleDisplay) Print(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
	fmt.Fprint(d.out, msg)
	if !strings.HasSuffix(msg, "\n") {
		fmt.Fprintln(d.out)
	}
	d.drawLocked()
}

func (d *consoleDisplay) SetVerbose(v bool) {
	d.mu.Lock()
	d.verbose = v
	d.mu.Unlock()
}

func (d *consoleDisplay) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
	d.tasks = nil
}

// emit prints one line above the active tasks.
func (d *consoleDisplay) emit(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clearLocked()
	fmt.Fprintln(d.out, line)
	d.drawLocked()
}

func (d *consoleDisplay) clearLocked() {
	for i := 0; i < d.drawn; i++ {
		fmt.Fprint(d.out, ansiUpClear)
	}
	d.drawn = 0
}

func (d *consoleDisplay) drawLocked() {
	for _, t := range d.tasks {
		fmt.Fprintln(d.out, t.render(d.bar))
	}
	d.drawn = len(d.tasks)
}

func (d *consoleDisplay) removeLocked(t *consoleTask) {
	for i, other := range d.tasks {
		if other == t {
			d.tasks = append(d.tasks[:i], d.tasks[i+1:]...)
			return
		}
	}
}

// PrintTable renders a table through the display's Print method.
func PrintTable(d Display, t *Table) {
	if t == nil || len(t.Header) == 0 {
		return
	}

	widths := make([]int, len(t.Header))
	for i, h := range t.Header {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var sb strings.Builder
	for i, h := range t.Header {
		fmt.Fprintf(&sb, "%-*s  ", widths[i], h)
	}
	sb.WriteString("\n")

	total := 0
	for _, w := range widths {
		total += w + 2
	}
	sb.WriteString(strings.Repeat("-", total) + "\n")

	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(&sb, "%-*s  ", widths[i], cell)
			}
		}
		sb.WriteString("\n")
	}
	d.Print(sb.String())
}

// Mutable, guarded by the owning display's mutex.
type consoleTask struct {
	d       *consoleDisplay
	name    string
	stage   string
	target  string
	percent int
	message string
	done    bool
}

func (t *consoleTask) Log(msg string) {
	t.d.Log(fmt.Sprintf("[%s] %s", t.name, msg))
}

func (t *consoleTask) SetStage(name string, target string) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.stage = name
	t.target = target
	t.d.clearLocked()
	t.d.drawLocked()
}

func (t *consoleTask) Progress(percent int, message string) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	t.percent = percent
	t.message = message
	t.d.clearLocked()
	t.d.drawLocked()
}

func (t *consoleTask) Done() {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	t.d.clearLocked()
	t.d.removeLocked(t)
	if t.d.verbose {
		fmt.Fprintln(t.d.out, dimStyle.Render(fmt.Sprintf("[%s] Done", t.name)))
	}
	t.d.drawLocked()
}

func (t *consoleTask) render(bar progress.Model) string {
	var sb strings.Builder
	sb.WriteString(taskStyle.Render("[" + t.name + "]"))
	if t.stage != "" {
		sb.WriteString(" " + t.stage)
	}
	if t.target != "" {
		sb.WriteString(" " + dimStyle.Render(t.target))
	}
	fmt.Fprintf(&sb, " %s %3d%%", bar.ViewAs(float64(t.percent)/100), t.percent)
	if t.message != "" {
		sb.WriteString(" " + t.message)
	}
	return sb.String()
}
