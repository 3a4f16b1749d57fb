package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/speedo/internal/utils"
	"golang.org/x/term"
)

// Stats is what the display needs from one throughput sample.
type Stats struct {
	Total          int64
	BytesPerSec    float64
	BitsPerSec     float64
	AvgBytesPerSec float64
	ActiveLoops    int
	Cap            int64
	Elapsed        time.Duration
}

type RunOutput struct {
	ID          int
	Title       string
	Status      string
	Message     string
	StreamLines []string
	Stats       Stats
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
	Index       int
}

type ErrorReport struct {
	Title string
	Error error
	Time  time.Time
}

type Manager struct {
	outputs     map[int]*RunOutput
	mutex       sync.RWMutex
	out         io.Writer
	interactive bool
	numLines    int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	runCount    int
	displayWg   sync.WaitGroup
}

// NewManager redraws in place when stdout is a terminal and falls back to
// one line per update otherwise.
func NewManager() *Manager {
	return &Manager{
		outputs:     make(map[int]*RunOutput),
		out:         os.Stdout,
		interactive: term.IsTerminal(int(os.Stdout.Fd())),
		doneCh:      make(chan struct{}),
		displayTick: 200 * time.Millisecond,
	}
}

// SetPlain forces line-per-update output to w.
func (m *Manager) SetPlain(w io.Writer) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.out = w
	m.interactive = false
}

func (m *Manager) Register(title string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.runCount++
	m.outputs[m.runCount] = &RunOutput{
		ID:          m.runCount,
		Title:       title,
		Status:      "pending",
		StreamLines: []string{},
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
		Index:       m.runCount,
	}
	return m.runCount
}

func (m *Manager) SetMessage(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Message = message
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) SetStatus(id int, status string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Status = status
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) GetStatus(id int) string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if info, exists := m.outputs[id]; exists {
		return info.Status
	}
	return "unknown"
}

// UpdateStats replaces the stat lines of a run. In plain mode the sample is
// printed immediately instead.
func (m *Manager) UpdateStats(id int, stats Stats) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info, exists := m.outputs[id]
	if !exists {
		return
	}
	info.Stats = stats
	info.StreamLines = StatLines(stats)
	info.LastUpdated = time.Now()
	if !m.interactive {
		fmt.Fprintf(m.out, "%s %s %s\n", debugStyle.Render(stats.Elapsed.Round(time.Second).String()), pendingStyle.Render(info.Title), strings.Join(info.StreamLines, " "+StyleSymbols["bullet"]+" "))
	}
}

// StatLines renders the live statistics of one run.
func StatLines(stats Stats) []string {
	lines := []string{
		fmt.Sprintf("%s %s   %s %s   %s %s",
			debugStyle.Render("Downloaded"), infoStyle.Render(utils.FormatBytes(uint64(max(stats.Total, 0)))),
			debugStyle.Render("Speed"), detailStyle.Render(utils.FormatRate(stats.BytesPerSec)),
			debugStyle.Render("Bandwidth"), success2Style.Render(utils.FormatBitrate(stats.BitsPerSec)),
		),
		fmt.Sprintf("%s %s   %s %d",
			debugStyle.Render("Average"), streamStyle.Render(utils.FormatRate(stats.AvgBytesPerSec)),
			debugStyle.Render("Connections"), stats.ActiveLoops,
		),
	}
	if stats.Cap > 0 {
		lines = append(lines, PrintProgressBar(stats.Total, stats.Cap, 30)+debugStyle.Render(utils.FormatBytes(uint64(stats.Cap))))
	}
	return lines
}

func (m *Manager) Complete(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		if message == "" {
			info.Message = fmt.Sprintf("Completed %s", info.Title)
		} else {
			info.Message = message
		}
		info.Complete = true
		info.Status = "success"
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) ReportError(id int, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Complete = true
		info.Status = "error"
		info.Error = err
		info.Message = err.Error()
		info.LastUpdated = time.Now()
		m.errors = append(m.errors, ErrorReport{
			Title: info.Title,
			Error: err,
			Time:  time.Now(),
		})
	}
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case "success", "pass":
		return successStyle.Render(StyleSymbols["pass"])
	case "error", "fail":
		return errorStyle.Render(StyleSymbols["fail"])
	case "warning":
		return warningStyle.Render(StyleSymbols["warning"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func (m *Manager) sortedRuns() []*RunOutput {
	runs := make([]*RunOutput, 0, len(m.outputs))
	for _, info := range m.outputs {
		runs = append(runs, info)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Index < runs[j].Index
	})
	return runs
}

func styleMessage(status, message string) string {
	switch status {
	case "success":
		return successStyle.Render(message)
	case "error":
		return errorStyle.Render(message)
	case "warning":
		return warningStyle.Render(message)
	default:
		return pendingStyle.Render(message)
	}
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if !m.interactive {
		return
	}
	availableLines := getTerminalHeight() - 3 // Leave some buffer for prompt
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	lineCount := 0
	for _, info := range m.sortedRuns() {
		if lineCount >= availableLines {
			break
		}
		elapsed := time.Since(info.StartTime).Round(time.Second)
		if info.Complete {
			elapsed = info.LastUpdated.Sub(info.StartTime).Round(time.Second)
		}
		message := info.Message
		if message == "" {
			message = info.Title
		}
		fmt.Fprintf(m.out, "%s%s %s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator(info.Status), debugStyle.Render(elapsed.String()), styleMessage(info.Status, message))
		lineCount++
		indent := strings.Repeat(" ", 2+4)
		for _, line := range info.StreamLines {
			if lineCount >= availableLines {
				break
			}
			fmt.Fprintf(m.out, "%s%s\n", indent, line)
			lineCount++
		}
	}
	m.numLines = lineCount
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(fmt.Sprintf("Run: %s", err.Title)))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	for _, info := range m.sortedRuns() {
		if !info.Complete {
			continue
		}
		s := info.Stats
		fmt.Fprintf(m.out, "%s%s %s\n", strings.Repeat(" ", 2), m.GetStatusIndicator(info.Status), styleMessage(info.Status, info.Message))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), success2Style.Render(fmt.Sprintf(
			"%s in %s %s avg %s (%s)",
			utils.FormatBytes(uint64(max(s.Total, 0))),
			s.Elapsed.Round(time.Millisecond),
			StyleSymbols["arrow"],
			utils.FormatRate(s.AvgBytesPerSec),
			utils.FormatBitrate(s.AvgBytesPerSec*8),
		)))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}
