package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/dreadlabs/dread-engine/pkg/world"
)

const (
	PlaceHolderText = "What do you do?"
	pollInterval    = 500 * time.Millisecond
)

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *http.Client
	session      *world.WorldState
	feed         []world.FeedEntry
	lastFeedID   int
	choices      []string
	feedViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	loading      bool

	// Scenario selection state
	showScenarioModal bool
	scenarios         []string
	scenarioMap       map[string]string
	selectedScenario  int
	loadingScenarios  bool

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type actionAcceptedMsg struct {
	requestID string
	err       error
}

type feedPollMsg struct {
	feed *FeedResponse
	err  error
}

type sessionRefreshMsg struct {
	session *world.WorldState
	err     error
}

type scenariosLoadedMsg struct {
	scenarios   []string
	scenarioMap map[string]string
	err         error
}

type sessionCreatedMsg struct {
	session *world.WorldState
	err     error
}

type progressTickMsg struct{}

type pollTickMsg struct{}

var (
	feedPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("160")). // red
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")) // pale grey

	consequenceStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("137")) // dull amber

	visionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")). // dark grey
			Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("108")) // sage

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	gameOverStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // red
			Bold(true)

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("160")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("160")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("160")).
				Bold(true)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey
)

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 500
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	feedVp := viewport.New(50, 20)
	feedVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:            cfg,
		client:            client,
		textarea:          ta,
		feedViewport:      feedVp,
		metaViewport:      metaVp,
		ready:             false,
		showScenarioModal: true,
		loadingScenarios:  true,
		selectedScenario:  0,
	}
}

func writeMetadata(ws *world.WorldState) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("SIMULATION") + "\n\n")

	content.WriteString("Session:\n")
	content.WriteString(ws.ID.String()[:8] + "...\n\n")

	if ws.Scenario != "" {
		content.WriteString("Scenario:\n")
		content.WriteString(ws.Scenario + "\n\n")
	}

	content.WriteString("Survivor:\n")
	if ws.Player.Alive {
		content.WriteString(fmt.Sprintf("HP %d\n\n", ws.Player.Health))
	} else {
		content.WriteString(errorStyle.Render("DEAD") + "\n\n")
	}

	content.WriteString("Phase:\n")
	content.WriteString(fmt.Sprintf("%s (chaos %d)\n\n", ws.Phase, ws.ChaosLevel))

	content.WriteString("Turns:\n")
	content.WriteString(fmt.Sprintf("%d\n\n", ws.TurnCount))

	if ws.InCombat {
		content.WriteString(errorStyle.Render("IN COMBAT") + "\n")
		if ws.Threat != "" {
			content.WriteString(ws.Threat + "\n")
		}
		content.WriteString("\n")
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• 1-3: Pick a choice\n")
	content.WriteString("• Ctrl+S: Copy session ID\n")

	return content.String()
}

// writeFeedContent rebuilds the feed panel content for the current width.
func (m *ConsoleUI) writeFeedContent() {
	feedWidth := m.feedViewport.Width - 6 // Account for left(3) + right(3) padding
	if feedWidth < 20 {
		feedWidth = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("DREAD ENGINE") + "\n\n")
	content.WriteString("Type an action below, or pick a numbered choice.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", feedWidth-6)) + "\n\n")

	for _, entry := range m.feed {
		content.WriteString(renderFeedEntry(entry, feedWidth))
	}

	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.feedViewport.SetContent(content.String())
	m.feedViewport.GotoBottom()
}

func renderFeedEntry(entry world.FeedEntry, width int) string {
	wrap := func(s string) string { return wordwrap.String(s, width-6) }

	switch entry.Type {
	case world.FeedPlayerAction:
		return userStyle.Render("You: ") + wrap(entry.Text) + "\n\n"
	case world.FeedNarrative:
		return narratorStyle.Render(wrap(entry.Text)) + "\n\n"
	case world.FeedConsequence:
		return consequenceStyle.Render(wrap(entry.Text)) + "\n\n"
	case world.FeedVision:
		return visionStyle.Render(wrap(entry.Text)) + "\n\n"
	case world.FeedSceneImage:
		return visionStyle.Render("[scene image: "+entry.Image+"]") + "\n\n"
	case world.FeedChoicePrompt:
		var b strings.Builder
		b.WriteString(choiceStyle.Render(wrap(entry.Text)) + "\n")
		for i, c := range entry.Choices {
			b.WriteString(choiceStyle.Render(fmt.Sprintf("  %d. %s", i+1, c)) + "\n")
		}
		b.WriteString("\n")
		return b.String()
	case world.FeedError:
		return errorStyle.Render(wrap(entry.Text)) + "\n\n"
	case world.FeedGameOver:
		return gameOverStyle.Render(wrap(entry.Text)) + "\n\n"
	default:
		return wrap(entry.Text) + "\n\n"
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	if m.showScenarioModal {
		return m.loadScenarios()
	}
	return textarea.Blink
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Handle scenario modal first
	if m.showScenarioModal {
		return m.updateScenarioModal(msg)
	}

	// Handle quit modal second
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.feedViewport, vpCmd = m.feedViewport.Update(msg)
		m.textarea, tiCmd = m.textarea.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(tiCmd, vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizePanels()
		m.writeFeedContent()
		if m.session != nil {
			m.metaViewport.SetContent(writeMetadata(m.session))
		}
		m.ready = true

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyCtrlS:
			if m.session != nil {
				_ = clipboard.WriteAll(m.session.ID.String())
			}
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}

			// Single digit picks the matching numbered choice.
			if len(input) == 1 && input[0] >= '1' && input[0] <= '9' {
				idx := int(input[0] - '1')
				if idx < len(m.choices) {
					input = m.choices[idx]
				}
			}

			m.textarea.Reset()
			m.loading = true
			m.progressTick = 0

			return m, tea.Batch(m.sendPlayerAction(input), progressTick())
		}

	case actionAcceptedMsg:
		if msg.err != nil {
			m.loading = false
			m.err = msg.err
			m.writeFeedContent()
			current := m.feedViewport.View()
			m.feedViewport.SetContent(current + errorStyle.Render("Error: "+msg.err.Error()) + "\n\n")
			m.feedViewport.GotoBottom()
			return m, nil
		}
		// Action queued; start polling for the turn's feed entries.
		return m, pollTick()

	case pollTickMsg:
		if !m.loading {
			return m, nil
		}
		return m, m.pollSessionFeed()

	case feedPollMsg:
		if msg.err != nil {
			m.loading = false
			m.err = msg.err
			m.writeFeedContent()
			current := m.feedViewport.View()
			m.feedViewport.SetContent(current + errorStyle.Render("Error: "+msg.err.Error()) + "\n\n")
			m.feedViewport.GotoBottom()
			return m, nil
		}

		turnDone := false
		for _, entry := range msg.feed.Entries {
			m.feed = append(m.feed, entry)
			switch entry.Type {
			case world.FeedChoicePrompt:
				m.choices = entry.Choices
				turnDone = true
			case world.FeedGameOver, world.FeedError:
				turnDone = true
			}
		}
		if msg.feed.LastID > m.lastFeedID {
			m.lastFeedID = msg.feed.LastID
		}

		if turnDone {
			m.loading = false
			m.writeFeedContent()
			return m, m.refreshSession()
		}
		m.writeFeedContent()
		return m, pollTick()

	case sessionRefreshMsg:
		if msg.err == nil && msg.session != nil {
			m.session = msg.session
			m.metaViewport.SetContent(writeMetadata(m.session))
		}

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeFeedContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.feedViewport, vpCmd = m.feedViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func (m *ConsoleUI) resizePanels() {
	feedWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - feedWidth - 6

	m.feedViewport.Width = feedWidth - 2
	m.feedViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(feedWidth - 4)
}

func (m ConsoleUI) sendPlayerAction(action string) tea.Cmd {
	return func() tea.Msg {
		requestID, err := sendAction(m.client, m.config.APIBaseURL, m.session.ID, action)
		return actionAcceptedMsg{requestID, err}
	}
}

func (m ConsoleUI) pollSessionFeed() tea.Cmd {
	return func() tea.Msg {
		feed, err := pollFeed(m.client, m.config.APIBaseURL, m.session.ID, m.lastFeedID)
		return feedPollMsg{feed, err}
	}
}

func (m ConsoleUI) refreshSession() tea.Cmd {
	return func() tea.Msg {
		ws, err := getSession(m.client, m.config.APIBaseURL, m.session.ID)
		return sessionRefreshMsg{ws, err}
	}
}

func (m ConsoleUI) loadScenarios() tea.Cmd {
	return func() tea.Msg {
		orderedNames, scenarioMap, err := listScenarios(m.client, m.config.APIBaseURL)
		return scenariosLoadedMsg{orderedNames, scenarioMap, err}
	}
}

func (m ConsoleUI) createSessionFromScenario(scenarioFile string) tea.Cmd {
	return func() tea.Msg {
		ws, err := createSession(m.client, m.config.APIBaseURL, scenarioFile)
		return sessionCreatedMsg{ws, err}
	}
}

func (m ConsoleUI) updateScenarioModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case scenariosLoadedMsg:
		m.loadingScenarios = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.scenarios = msg.scenarios
			m.scenarioMap = msg.scenarioMap
		}

	case sessionCreatedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.session = msg.session
			m.feed = append(m.feed, msg.session.Feed...)
			m.lastFeedID = msg.session.LastFeedID()
			m.showScenarioModal = false
			if m.width > 0 && m.height > 0 {
				m.resizePanels()
			}
			m.writeFeedContent()
			m.metaViewport.SetContent(writeMetadata(m.session))
			m.textarea.Focus()
			m.ready = true
		}
		return m, textarea.Blink

	case tea.KeyMsg:
		if m.loadingScenarios || m.err != nil {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyUp:
			if m.selectedScenario > 0 {
				m.selectedScenario--
			}
		case tea.KeyDown:
			if m.selectedScenario < len(m.scenarios)-1 {
				m.selectedScenario++
			}
		case tea.KeyEnter:
			if len(m.scenarios) > 0 {
				scenarioName := m.scenarios[m.selectedScenario]
				scenarioFile := m.scenarioMap[scenarioName]
				m.loading = true
				return m, m.createSessionFromScenario(scenarioFile)
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				if !m.showScenarioModal {
					m.textarea.Focus()
					return m, textarea.Blink
				}
				return m, nil
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Leave the Simulation?"))
	content.WriteString("\n\n")
	content.WriteString("The world keeps its state. You can come back.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderScenarioModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	if m.loadingScenarios {
		content.WriteString(modalTitleStyle.Render("Loading Scenarios..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Fetching available scenarios..."))
	} else if m.err != nil {
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(fmt.Sprintf("Failed to load scenarios: %v", m.err)))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	} else if m.loading {
		content.WriteString(modalTitleStyle.Render("Starting..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Preparing the simulation..."))
	} else {
		content.WriteString(modalTitleStyle.Render("Select a Scenario"))
		content.WriteString("\n\n")

		for i, scen := range m.scenarios {
			if i == m.selectedScenario {
				content.WriteString(modalSelectedItemStyle.Render(fmt.Sprintf("▶ %s", scen)))
			} else {
				content.WriteString(modalItemStyle.Render(fmt.Sprintf("  %s", scen)))
			}
			content.WriteString("\n")
		}

		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showScenarioModal {
		return m.renderScenarioModal()
	}

	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	feedWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - feedWidth - 6

	feedPanel := feedPanelStyle.Width(feedWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.feedViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", feedWidth-4)),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, feedPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for pending turns
func (m ConsoleUI) renderProgressBar() string {
	usable := m.feedViewport.Width - 6
	if usable <= 0 {
		usable = 30
	}
	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓")
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}

func pollTick() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}
