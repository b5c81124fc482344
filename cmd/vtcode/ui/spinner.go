package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type spinnerModel struct {
	spinner  spinner.Model
	quitting bool
	msg      string
}

func initialSpinnerModel(msg string) spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return spinnerModel{spinner: s, msg: msg}
}

func (m spinnerModel) Init() tea.Cmd { return m.spinner.Tick }

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "esc" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		return m, nil
	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	if m.quitting {
		return ""
	}
	return fmt.Sprintf("\n%s %s", m.spinner.View(), m.msg)
}

// StartLoading runs a bubbletea spinner program until the returned stop channel
// is closed, signalling completion on the returned done channel.
func StartLoading(msg string) (chan struct{}, chan struct{}) {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		m := initialSpinnerModel(msg)
		p := tea.NewProgram(m)

		go func() {
			if _, err := p.Run(); err != nil {
				fmt.Println("spinner error:", err)
			}
			close(done)
		}()

		<-stop
		p.Quit()
	}()

	return stop, done
}

// StartInlineSpinner renders a lightweight in-place spinner next to a
// running tool call's name, without taking over the whole screen.
func StartInlineSpinner(toolName string) (chan struct{}, chan struct{}) {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)

		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		idx := 0
		fmt.Printf("\n\n🔧 %s %s", toolName, frames[idx])

		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				fmt.Print("\r\033[K")
				return
			case <-ticker.C:
				idx = (idx + 1) % len(frames)
				fmt.Printf("\r🔧 %s %s", toolName, frames[idx])
			}
		}
	}()

	return stop, done
}
