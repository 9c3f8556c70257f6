package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nrivara/folio/pkg/app/styles"
	"github.com/nrivara/folio/pkg/offline"
)

// SnapshotMsg carries a progress snapshot into the model; senders use
// Program.Send from the workflow's subscription callback.
type SnapshotMsg offline.Snapshot

// DoneMsg ends the program once the download returns.
type DoneMsg struct {
	Err error
}

// DownloadModel renders one book download as a progress bar.
type DownloadModel struct {
	title string
	bar   progress.Model
	snap  offline.Snapshot
	err   error
	done  bool
}

func NewDownloadModel(title string) DownloadModel {
	return DownloadModel{
		title: title,
		bar:   progress.New(progress.WithDefaultGradient()),
	}
}

func (m DownloadModel) Init() tea.Cmd {
	return nil
}

func (m DownloadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SnapshotMsg:
		m.snap = offline.Snapshot(msg)
		return m, m.bar.SetPercent(float64(m.snap.Progress) / 100)
	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			// The download keeps running; only the view goes away.
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = msg.Width - 4
		return m, nil
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m DownloadModel) View() string {
	s := styles.TitleStyle.Render("Downloading "+m.title) + "\n\n"
	s += m.bar.View() + "\n"
	if m.snap.TotalItems > 0 {
		s += styles.MutedStyle.Render(
			fmt.Sprintf("%d/%d items", m.snap.CachedItems, m.snap.TotalItems)) + "\n"
	}
	if m.done {
		if m.err != nil {
			s += styles.ErrorStyle.Render("Download failed: "+m.err.Error()) + "\n"
		} else {
			s += styles.SuccessStyle.Render("Available offline") + "\n"
		}
	}
	return s
}

// Err reports the terminal error, if any, after the program finishes.
func (m DownloadModel) Err() error {
	return m.err
}
