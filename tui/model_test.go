package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/gym"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return mm, cmd
}

func TestModel_QuitKeys(t *testing.T) {
	m := New(NewFeed(), "snekgym", 3)
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	} {
		_, cmd := update(t, m, key)
		if cmd == nil {
			t.Fatalf("%q: expected quit command", key.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("%q: expected QuitMsg", key.String())
		}
	}
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if cmd != nil {
		t.Fatalf("unexpected command for other key")
	}
}

func TestModel_GenerationKeepsLastTen(t *testing.T) {
	m := New(NewFeed(), "snekgym", 20)
	for gen := 0; gen < 12; gen++ {
		m, _ = update(t, m, GenerationMsg{Report: &gym.GenerationReport{
			Generation:      gen,
			EpochsRemaining: 19 - gen,
			Best:            float64(gen),
			Mean:            float64(gen) / 2,
			Longest:         gen + 1,
		}})
	}
	if len(m.recent) != recentLines {
		t.Fatalf("recent=%d want=%d", len(m.recent), recentLines)
	}
	if !strings.Contains(m.recent[0], "gen   11") {
		t.Fatalf("newest line first, got %q", m.recent[0])
	}
	if m.generation != 12 || m.epochsLeft != 8 || m.best != 11 || m.longest != 12 {
		t.Fatalf("model=%+v", m)
	}
	view := m.View()
	for _, want := range []string{"Generation", "Epochs left", "Ticks/sec", "Best fitness", "Mean fitness"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "gen    1 ") {
		t.Fatalf("old generation still shown:\n%s", view)
	}
}

func TestModel_TickReadsFeedCounters(t *testing.T) {
	feed := NewFeed()
	m := New(feed, "snekgym", 1)
	states := []*game.GameState{{}, {}, {}}
	for i := 0; i < 4; i++ {
		feed.OnTick(gym.TickEvent{Tick: i, States: states})
	}
	m, cmd := update(t, m, TickMsg(m.startTime.Add(2*time.Second)))
	if cmd == nil {
		t.Fatalf("tick should reschedule")
	}
	if m.ticks != 4 || m.steps != 12 {
		t.Fatalf("ticks=%d steps=%d", m.ticks, m.steps)
	}
	if got := m.rate(m.ticks); got != 2 {
		t.Fatalf("ticks/sec=%v want=2", got)
	}
}

func TestFeed_DeliversReportsThenDone(t *testing.T) {
	feed := NewFeed()
	feed.OnGeneration(&gym.GenerationReport{Generation: 0})
	msg := waitForUpdate(feed)()
	if _, ok := msg.(GenerationMsg); !ok {
		t.Fatalf("msg=%T want GenerationMsg", msg)
	}

	boom := errors.New("boom")
	feed.Finish(boom)
	feed.Finish(nil)
	msg = waitForUpdate(feed)()
	done, ok := msg.(DoneMsg)
	if !ok || !errors.Is(done.Err, boom) {
		t.Fatalf("msg=%#v want DoneMsg(boom)", msg)
	}

	m := New(feed, "snekgym", 1)
	m, cmd := update(t, m, done)
	if cmd == nil {
		t.Fatalf("done should quit")
	}
	if finished, err := m.Done(); !finished || !errors.Is(err, boom) {
		t.Fatalf("Done()=%v,%v", finished, err)
	}
	if !strings.Contains(m.View(), "boom") {
		t.Fatalf("view should show the error")
	}
}

func TestFeed_QueuedReportsBeforeDone(t *testing.T) {
	feed := NewFeed()
	for gen := 0; gen < 3; gen++ {
		feed.OnGeneration(&gym.GenerationReport{Generation: gen})
	}
	feed.Finish(nil)

	m := New(feed, "snekgym", 2)
	for want := 0; want < 3; want++ {
		msg, ok := waitForUpdate(feed)().(GenerationMsg)
		if !ok {
			t.Fatalf("report %d: got done before queued reports drained", want)
		}
		if msg.Report.Generation != want {
			t.Fatalf("generation=%d want=%d", msg.Report.Generation, want)
		}
		m, _ = update(t, m, msg)
	}
	if _, ok := waitForUpdate(feed)().(DoneMsg); !ok {
		t.Fatalf("expected DoneMsg once the queue is empty")
	}
	if len(m.recent) != 3 || !strings.Contains(m.recent[0], "gen    2") {
		t.Fatalf("recent=%q", m.recent)
	}
}

func TestFeed_FullQueueDrops(t *testing.T) {
	feed := NewFeed()
	for i := 0; i < cap(feed.reports)+10; i++ {
		feed.OnGeneration(&gym.GenerationReport{Generation: i})
	}
	if got := len(feed.reports); got != cap(feed.reports) {
		t.Fatalf("queued=%d want=%d", got, cap(feed.reports))
	}
}
