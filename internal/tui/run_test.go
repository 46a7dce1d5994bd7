package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MCarreroPazos/LiDARch/pipeline"
)

var testStageNames = []string{"decompress", "classify", "filter", "interpolate", "merge", "visualize"}

func TestRunModel_ViewListsAllStages(t *testing.T) {
	m := NewRunModel(DarkTheme, testStageNames, nil, nil)
	snap := pipeline.Snapshot{State: pipeline.RunRunning, StageIndex: 2, StageName: "classify", Percent: 20}
	snap.Statuses[0] = pipeline.StageSucceeded
	snap.Statuses[1] = pipeline.StageRunning
	m.snap = snap

	view := m.View()
	for _, name := range testStageNames {
		if !strings.Contains(view, name) {
			t.Errorf("view missing stage %q", name)
		}
	}
	if !strings.Contains(view, "estimated remaining") {
		t.Error("view missing the remaining-time line")
	}
}

func TestRunModel_QuitsOnTerminalSnapshot(t *testing.T) {
	m := NewRunModel(DarkTheme, testStageNames, nil, nil)
	snap := pipeline.Snapshot{State: pipeline.RunCompleted, Percent: 100}

	updated, cmd := m.Update(SnapshotMsg(snap))
	rm := updated.(RunModel)
	if !rm.Done() {
		t.Error("model not done after a terminal snapshot")
	}
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if msg := cmd(); msg == nil {
		t.Error("quit command produced no message")
	}
}

func TestRunModel_CancelEscalates(t *testing.T) {
	var calls []bool
	m := NewRunModel(DarkTheme, testStageNames, nil, func(hard bool) {
		calls = append(calls, hard)
	})

	key := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
	updated, _ := m.Update(key)
	updated, _ = updated.(RunModel).Update(key)
	_ = updated

	if len(calls) != 2 {
		t.Fatalf("cancel called %d time(s), want 2", len(calls))
	}
	if calls[0] != false || calls[1] != true {
		t.Errorf("cancel calls = %v, want soft then hard", calls)
	}
}

func TestFormatETA(t *testing.T) {
	cases := []struct {
		seconds int
		want    string
	}{
		{45, "45s"},
		{90, "1m30s"},
		{3900, "1h05m"},
	}
	for _, c := range cases {
		got := formatETA(time.Duration(c.seconds) * time.Second)
		if got != c.want {
			t.Errorf("formatETA(%ds) = %q, want %q", c.seconds, got, c.want)
		}
	}
}
