package ui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobmatch/internal/model"
)

// Lines per match in the list view (title + subtitle + blank separator).
const matchItemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")) // bright blue

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("39"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")). // bright white
				Background(lipgloss.Color("24"))  // dark blue bg

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(14)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	bodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
)

type browserModel struct {
	title    string
	matches  []model.Match
	list     viewport.Model
	detail   viewport.Model
	cursor   int
	width    int
	height   int
	ready    bool
	view     viewState
	openLink func(string)
}

func (m browserModel) Init() tea.Cmd {
	return nil
}

func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}
	return m, nil
}

func (m browserModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		m.cursor = clamp(m.cursor-1, 0, max(len(m.matches)-1, 0))
		m.list.SetContent(m.renderList())
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.cursor = clamp(m.cursor+1, 0, max(len(m.matches)-1, 0))
		m.list.SetContent(m.renderList())
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		if len(m.matches) == 0 {
			return m, nil
		}
		m.view = viewDetail
		m.detail = viewport.New(max(m.width-4, 20), max(m.height-4, 5))
		m.detail.SetContent(m.renderDetail())
		return m, nil
	}

	// Forward other keys (pgup/pgdn/home/end) to the list viewport.
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m browserModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		if link := m.matches[m.cursor].Job.Link; link != "" && m.openLink != nil {
			m.openLink(link)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m *browserModel) ensureCursorVisible() {
	top := m.cursor * matchItemHeight
	bottom := top + matchItemHeight - 1

	if top < m.list.YOffset {
		m.list.SetYOffset(top)
	} else if bottom >= m.list.YOffset+m.list.Height {
		m.list.SetYOffset(bottom - m.list.Height + 1)
	}
}

func (m *browserModel) recalcLayout() {
	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	width := max(m.width-4, 20)
	height := max(m.height-4, 5)

	if !m.ready {
		m.list = viewport.New(width, height)
		m.ready = true
	} else {
		m.list.Width = width
		m.list.Height = height
	}
	m.list.SetContent(m.renderList())

	if m.view == viewDetail {
		m.detail.Width = width
		m.detail.Height = height
		m.detail.SetContent(m.renderDetail())
	}
}

func (m browserModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.view == viewDetail {
		content := borderStyle.Width(m.width - 2).Render(m.detail.View())
		status := statusBarStyle.Width(m.width).Render(" o open link  esc/backspace back  ↑/↓ scroll  q quit")
		return headerStyle.Render("Job Details") + "\n" + content + "\n" + status
	}

	header := headerStyle.Render(fmt.Sprintf("%s (%d)", m.title, len(m.matches)))
	content := borderStyle.Width(m.list.Width).Render(m.list.View())
	status := statusBarStyle.Width(m.width).Render(" ↑/↓ cursor  Enter detail  q quit")
	return header + "\n" + content + "\n" + status
}

func (m browserModel) renderList() string {
	if len(m.matches) == 0 {
		return "  (no matches)"
	}

	var b strings.Builder
	for i, match := range m.matches {
		titleSt, subtitleSt, prefix := titleStyle, subtitleStyle, "  "
		if i == m.cursor {
			titleSt, subtitleSt, prefix = selectedTitleStyle, selectedSubtitleStyle, "> "
		}

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(fmt.Sprintf("%s  %.3f", match.Job.Title, match.Score)))
		b.WriteByte('\n')
		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(subtitle(match.Job)))
		b.WriteByte('\n')

		if i < len(m.matches)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (m browserModel) renderDetail() string {
	match := m.matches[m.cursor]
	j := match.Job
	var b strings.Builder

	addField := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	addField("Title", j.Title)
	addField("Score", fmt.Sprintf("%.4f", match.Score))
	addField("Location", j.Location)
	addField("Level", j.Seniority)
	addField("Service", j.Service)
	addField("Industry", j.Industry)
	addField("Employment", j.Employment)
	addField("Salary", j.Salary)
	if !j.PublishedAt.IsZero() {
		addField("Published", j.PublishedAt.Format("2006-01-02"))
	}
	addField("Link", j.Link)

	if j.Description != "" {
		wrapWidth := max(m.width-8, 20)
		label := "── Description "
		b.WriteByte('\n')
		b.WriteString(dividerStyle.Render(label+strings.Repeat("─", max(wrapWidth-len(label), 3))) + "\n\n")
		b.WriteString(bodyStyle.Render(wordWrap(j.Description, wrapWidth)) + "\n")
	}
	return b.String()
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// Browse launches a full-screen list of matches with a detail view.
func Browse(title string, matches []model.Match) error {
	m := browserModel{
		title:    title,
		matches:  matches,
		openLink: openURL,
	}
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
