package main

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hark/pipeline"
)

type listeningMsg struct{ Gen uint64 }
type mutedMsg struct {
	Gen    uint64
	AudioS float64
}
type audioLevelMsg struct{ Level float64 }
type silenceWarnMsg struct{}
type outcomeMsg struct{ Outcome pipeline.Outcome }
type modeLineMsg struct{ Text string }
type deviceLineMsg struct{ Text string }
type tickMsg time.Time

type tuiModel struct {
	listening   bool
	listenStart time.Time
	elapsed     time.Duration
	frame       int
	level       float64
	silent      bool
	width       int
	height      int
	modeLine    string
	deviceLine  string
	helpKey     string
	count       int
	last        *pipeline.Outcome
	stats       *sessionStats
	toggle      func()
	started     func()
}

var (
	eyeColorsOn  = []string{"", "226", "220", "214", "208", "196", "160", "124", "88", "52", "236", "236", "255"}
	eyeColorsOff = []string{"", "231", "224", "217", "210", "160", "124", "88", "52", "236", "236", "236", "255"}
	eyeStylesOn  []lipgloss.Style
	eyeStylesOff []lipgloss.Style

	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldHelp   = helpStyle.Bold(true)
	liveStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	textStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

func init() {
	styles := func(colors []string) []lipgloss.Style {
		out := make([]lipgloss.Style, len(colors))
		for i, c := range colors {
			if c != "" {
				out[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
			}
		}
		return out
	}
	eyeStylesOn = styles(eyeColorsOn)
	eyeStylesOff = styles(eyeColorsOff)
}

func newTUI(stats *sessionStats, helpKey string, toggle func()) *tuiDisplay {
	d := &tuiDisplay{ready: make(chan struct{})}
	var once sync.Once
	m := tuiModel{
		stats:   stats,
		helpKey: helpKey,
		toggle:  toggle,
		started: func() { once.Do(func() { close(d.ready) }) },
	}
	d.p = tea.NewProgram(m, tea.WithAltScreen())
	return d
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	if m.started != nil {
		m.started()
	}
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "enter", " ":
			if m.toggle != nil {
				m.toggle()
			}
		}

	case tickMsg:
		m.frame++
		if m.listening {
			m.elapsed = time.Time(msg).Sub(m.listenStart)
		}
		return m, tuiTick()

	case listeningMsg:
		m.listening = true
		m.listenStart = time.Now()
		m.elapsed = 0
		m.level = 0
		m.silent = false

	case mutedMsg:
		m.listening = false
		m.level = 0
		m.silent = false

	case audioLevelMsg:
		if m.listening {
			m.level = m.level*0.6 + msg.Level*0.4
		}

	case silenceWarnMsg:
		m.silent = true

	case outcomeMsg:
		o := msg.Outcome
		m.count++
		m.last = &o

	case modeLineMsg:
		m.modeLine = msg.Text

	case deviceLineMsg:
		m.deviceLine = msg.Text
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	const eyeWidth = 45
	level := m.level
	if !m.listening {
		level = 0
	}

	var left []string
	left = append(left, strings.Split(renderEye(m.frame, level, m.listening), "\n")...)

	if m.listening {
		left = append(left, liveStyle.Render(fmt.Sprintf("● LISTENING %.1fs", m.elapsed.Seconds())))
		if m.silent {
			left = append(left, warnStyle.Render("  ⚠ no voice detected"))
		}
	} else {
		left = append(left, dimStyle.Render("○ MUTED"))
	}
	if m.modeLine != "" {
		left = append(left, mutedStyle.Render(m.modeLine))
	}
	if m.deviceLine != "" {
		left = append(left, dimStyle.Render(m.deviceLine))
	}
	if m.stats != nil {
		if table := m.stats.table(); table != "" {
			left = append(left, "")
			for _, line := range strings.Split(table, "\n") {
				left = append(left, dimStyle.Render(line))
			}
		}
	}
	left = append(left, "")
	left = append(left, boldHelp.Render(m.helpKey)+helpStyle.Render(" to toggle, q to quit"))
	left = append(left, helpStyle.Render("hark "+version))

	for len(left) < m.height {
		left = append(left, strings.Repeat(" ", eyeWidth-1))
	}
	if len(left) > m.height {
		left = left[:m.height]
	}
	eyePanel := lipgloss.NewStyle().
		Width(eyeWidth - 1).
		Height(m.height).
		Render(strings.Join(left, "\n"))

	logWidth := max(m.width-eyeWidth-1, 20)
	logPanel := lipgloss.NewStyle().
		Width(logWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(m.renderLast(max(logWidth-2, 10)))

	return lipgloss.JoinHorizontal(lipgloss.Top, eyePanel, logPanel)
}

func (m tuiModel) renderLast(wrapWidth int) string {
	if m.last == nil {
		return dimStyle.Render("Nothing heard yet")
	}
	o := m.last

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("246")).
		Render(fmt.Sprintf("Last utterance (#%d, %.1fs)", m.count, o.AudioS)))
	b.WriteString("\n\n")

	switch {
	case o.Err != nil && o.Record == nil:
		for _, line := range wrapText(o.Err.Error(), wrapWidth) {
			b.WriteString(errStyle.Render(line) + "\n")
		}
		return b.String()
	case o.Text == "":
		b.WriteString(warnStyle.Render("(no speech detected)") + "\n")
		return b.String()
	}

	for _, line := range wrapText(o.Text, wrapWidth) {
		b.WriteString(textStyle.Render(line) + "\n")
	}
	if o.Record != nil && len(o.Record.Actions) > 0 {
		b.WriteString("\n")
		for _, a := range o.Record.Actions {
			desc := a.Type
			for _, part := range []string{a.ID, a.From, a.To, a.Text} {
				if part != "" {
					desc += " " + part
				}
			}
			b.WriteString(okStyle.Render("+ "+desc) + "\n")
		}
	}
	if o.Err != nil {
		b.WriteString("\n" + warnStyle.Render(o.Err.Error()) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render(fmt.Sprintf("%d ms", o.Took.Milliseconds())))
	return b.String()
}

// renderEye draws concentric rings in half-block characters that swell
// with the audio level while listening.
func renderEye(frame int, level float64, listening bool) string {
	const charsW = 44
	const charsH = 15
	const pixH = charsH * 2

	centerX := float64(charsW) / 2
	centerY := float64(pixH) / 2

	var breathe float64
	if listening {
		breathe = math.Sin(float64(frame)*0.10)*0.03 + level*10.0 - 0.05
	} else {
		breathe = math.Sin(float64(frame)*0.08)*0.02 - 0.05
	}

	rings := []struct {
		radius float64
		react  float64
	}{
		{0.6, 0.10}, {1.3, 0.12}, {2.0, 0.15}, {2.8, 0.35}, {3.5, 0.40},
		{4.2, 0.38}, {5.0, 0.30}, {5.8, 0.15}, {6.5, 0.03}, {8.0, 0}, {10.0, 0},
	}

	pixel := func(x, y int) int {
		dx := float64(x) - centerX
		dy := float64(y) - centerY
		if dx > -3 && dx < -1 && dy > -5 && dy < -3 {
			return len(rings) + 1 // highlight
		}
		dist := math.Sqrt(dx*dx + dy*dy)
		for i, r := range rings {
			radius := math.Min(r.radius+breathe*r.react*20, 10)
			if dist < radius {
				return i + 1
			}
		}
		return 0
	}

	styles := eyeStylesOff
	if listening {
		styles = eyeStylesOn
	}

	var out strings.Builder
	for cy := 0; cy < charsH; cy++ {
		for cx := 0; cx < charsW; cx++ {
			top, bot := pixel(cx, cy*2), pixel(cx, cy*2+1)
			switch {
			case top == 0 && bot == 0:
				out.WriteString(" ")
			case top == bot || bot == 0:
				out.WriteString(styles[top].Render("▀"))
			default:
				// Inner rings win so the pupil stays round.
				c := top
				if top == 0 || bot < top {
					c = bot
				}
				out.WriteString(styles[c].Render("▄"))
			}
		}
		out.WriteString("\n")
	}
	return strings.TrimSuffix(out.String(), "\n")
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}

// tuiDisplay forwards pipeline events into the bubbletea program. Send
// blocks until the program runs, so wait for ready before the first event.
type tuiDisplay struct {
	p     *tea.Program
	ready chan struct{}
}

func (d tuiDisplay) Listening(gen uint64)             { d.p.Send(listeningMsg{Gen: gen}) }
func (d tuiDisplay) Muted(gen uint64, audioS float64) { d.p.Send(mutedMsg{Gen: gen, AudioS: audioS}) }
func (d tuiDisplay) AudioLevel(level float64)         { d.p.Send(audioLevelMsg{Level: level}) }
func (d tuiDisplay) SilenceWarning()                  { d.p.Send(silenceWarnMsg{}) }
func (d tuiDisplay) Outcome(o pipeline.Outcome)       { d.p.Send(outcomeMsg{Outcome: o}) }
func (d tuiDisplay) ModeLine(text string)             { d.p.Send(modeLineMsg{Text: text}) }
func (d tuiDisplay) DeviceLine(text string)           { d.p.Send(deviceLineMsg{Text: text}) }
