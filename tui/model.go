// Package tui is a bubbletea monitor for a training run.
package tui

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/snekgym/gym"
)

const recentLines = 10

// Feed carries gym callbacks into the model. Its methods are safe to call from
// the gym's goroutine and never block.
type Feed struct {
	ticks   atomic.Int64
	steps   atomic.Int64
	reports chan *gym.GenerationReport

	finish sync.Once
	done   chan struct{}
	err    error // set before done is closed
}

func NewFeed() *Feed {
	return &Feed{
		reports: make(chan *gym.GenerationReport, 64),
		done:    make(chan struct{}),
	}
}

// OnTick counts a tick and its environment steps.
func (f *Feed) OnTick(e gym.TickEvent) {
	f.ticks.Add(1)
	f.steps.Add(int64(len(e.States)))
}

// OnGeneration queues a report. A full queue drops it.
func (f *Feed) OnGeneration(r *gym.GenerationReport) {
	select {
	case f.reports <- r:
	default:
	}
}

// Finish reports the end of training. Only the first call counts.
func (f *Feed) Finish(err error) {
	f.finish.Do(func() {
		f.err = err
		close(f.done)
	})
}

type TickMsg time.Time

type GenerationMsg struct{ Report *gym.GenerationReport }

type DoneMsg struct{ Err error }

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// waitForUpdate delivers queued reports before the done signal, so the last
// generations are shown before the monitor quits.
func waitForUpdate(f *Feed) tea.Cmd {
	return func() tea.Msg {
		select {
		case r := <-f.reports:
			return GenerationMsg{Report: r}
		case <-f.done:
		}
		select {
		case r := <-f.reports:
			return GenerationMsg{Report: r}
		default:
			return DoneMsg{Err: f.err}
		}
	}
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(18)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type Model struct {
	feed      *Feed
	title     string
	startTime time.Time
	now       time.Time

	generation int
	epochsLeft int
	ticks      int64
	steps      int64
	best       float64
	mean       float64
	longest    int
	recent     []string

	done bool
	err  error
}

// New builds a model. epochs is the configured epoch count, shown until the
// first report arrives.
func New(feed *Feed, title string, epochs int) Model {
	now := time.Now()
	return Model{
		feed:       feed,
		title:      title,
		startTime:  now,
		now:        now,
		epochsLeft: epochs,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.feed), tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		m.now = time.Time(msg)
		m.ticks = m.feed.ticks.Load()
		m.steps = m.feed.steps.Load()
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	case GenerationMsg:
		r := msg.Report
		m.generation = r.Generation + 1
		m.epochsLeft = r.EpochsRemaining
		m.best, m.mean, m.longest = r.Best, r.Mean, r.Longest

		line := fmt.Sprintf("gen %4d  best %7.3f  mean %7.3f  longest %3d  ticks %4d  %s",
			r.Generation, r.Best, r.Mean, r.Longest, r.Ticks, r.Duration.Round(time.Microsecond))
		if r.Degenerate {
			line += warnStyle.Render("  degenerate")
		}
		m.recent = append([]string{line}, m.recent...)
		if len(m.recent) > recentLines {
			m.recent = m.recent[:recentLines]
		}
		return m, waitForUpdate(m.feed)
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		m.ticks = m.feed.ticks.Load()
		m.steps = m.feed.steps.Load()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) rate(n int64) float64 {
	secs := m.now.Sub(m.startTime).Seconds()
	if secs < 1 {
		return 0
	}
	return float64(n) / secs
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title) + "\n\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}
	row("Generation", fmt.Sprintf("%d", m.generation))
	row("Epochs left", fmt.Sprintf("%d", m.epochsLeft))
	row("Ticks", fmt.Sprintf("%d", m.ticks))
	row("Ticks/sec", fmt.Sprintf("%.2f", m.rate(m.ticks)))
	row("Steps/sec", fmt.Sprintf("%.2f", m.rate(m.steps)))
	row("Best fitness", fmt.Sprintf("%.3f", m.best))
	row("Mean fitness", fmt.Sprintf("%.3f", m.mean))
	row("Longest snake", fmt.Sprintf("%d", m.longest))
	row("Duration", m.now.Sub(m.startTime).Round(time.Second).String())

	b.WriteString("\nRecent generations:\n")
	recent := "(none yet)"
	if len(m.recent) > 0 {
		recent = strings.Join(m.recent, "\n")
	}
	b.WriteString(boxStyle.Render(recent) + "\n")

	switch {
	case m.err != nil:
		b.WriteString(errStyle.Render("\nTraining failed: "+m.err.Error()) + "\n")
	case m.done:
		b.WriteString("\nTraining finished.\n")
	default:
		b.WriteString("\nPress q to quit.\n")
	}
	return b.String()
}

// Done reports whether training finished, and with which error.
func (m Model) Done() (bool, error) { return m.done, m.err }
