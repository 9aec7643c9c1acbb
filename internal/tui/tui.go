// Package tui is the terminal shell over a single generation session.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dmorgan81/textimage/internal/controller"
	"github.com/dmorgan81/textimage/internal/log"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	buttonStyle = lipgloss.NewStyle().Padding(0, 2).Background(lipgloss.Color("27")).Foreground(lipgloss.Color("255"))
	busyStyle   = buttonStyle.Copy().Background(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	savedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	modalStyle  = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(1, 2)
)

type generatedMsg struct{ err error }

type downloadedMsg struct {
	saved bool
	err   error
}

type Model struct {
	ctx        context.Context
	controller *controller.Controller
	input      textinput.Model
	spinner    spinner.Model
	generating bool
	notice     string
	saved      string
}

func New(ctx context.Context, c *controller.Controller) Model {
	ti := textinput.New()
	ti.Placeholder = "Enter your image prompt"
	ti.SetValue(c.State().Prompt)
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return Model{ctx: ctx, controller: c, input: ti, spinner: s}
}

func Run(ctx context.Context, c *controller.Controller) error {
	_, err := tea.NewProgram(New(ctx, c), tea.WithContext(ctx)).Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) generate() tea.Cmd {
	return func() tea.Msg {
		return generatedMsg{err: m.controller.Generate(m.ctx)}
	}
}

func (m Model) download() tea.Cmd {
	return func() tea.Msg {
		saved, err := m.controller.DownloadCurrentImage(m.ctx)
		return downloadedMsg{saved: saved, err: err}
	}
}

func (m Model) loading() bool {
	return m.generating || m.controller.State().Loading
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.controller.DismissModal()
			return m, nil
		case "ctrl+s":
			m.saved = ""
			return m, m.download()
		case "enter":
			if m.loading() {
				return m, nil
			}
			m.controller.UpdatePrompt(m.input.Value())
			m.generating = true
			m.notice, m.saved = "", ""
			return m, tea.Batch(m.generate(), m.spinner.Tick)
		}
	case generatedMsg:
		m.generating = false
		if n := m.controller.TakeNotice(); n != nil {
			m.notice = n.Message
		}
		if msg.err != nil {
			log.FromContextOrDiscard(m.ctx).Debug("generation finished with error", "error", msg.err)
		}
		return m, nil
	case downloadedMsg:
		switch {
		case msg.err != nil:
			m.notice = "Error: " + msg.err.Error()
		case msg.saved:
			m.saved = "Saved " + controller.DownloadName
		}
		return m, nil
	case spinner.TickMsg:
		if !m.loading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.controller.UpdatePrompt(m.input.Value())
	return m, cmd
}

func (m Model) View() string {
	st := m.controller.State()

	view := titleStyle.Render("AI Image Generator") + "\n" +
		mutedStyle.Render("Generate stunning images using AI") + "\n\n" +
		m.input.View() + "\n\n"

	if m.loading() {
		view += busyStyle.Render(m.spinner.View()+" Generating...") + "\n"
	} else {
		view += buttonStyle.Render("Generate Image") + mutedStyle.Render("  enter") + "\n"
	}

	if m.notice != "" {
		view += "\n" + errorStyle.Render(m.notice) + "\n"
	}

	if st.ModalVisible && st.Image != nil {
		body := titleStyle.Render("Generated Image") + "\n\n" +
			fmt.Sprintf("%s, %d bytes", st.Image.ContentType, st.Image.Size()) + "\n\n" +
			mutedStyle.Render("ctrl+s download  esc close")
		view += "\n" + modalStyle.Render(body) + "\n"
	}

	if m.saved != "" {
		view += "\n" + savedStyle.Render(m.saved) + "\n"
	}

	return view + "\n" + mutedStyle.Render("ctrl+c quit") + "\n"
}
