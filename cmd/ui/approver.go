package ui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"ClusterDesk/pkg/session/api"
)

// Decision is the user's answer to an approval prompt.
type Decision int

const (
	DecisionDeny Decision = iota
	DecisionApprove
)

// Approver prompts the user for tool approval decisions on the terminal.
type Approver struct {
	// Reader for input on non-interactive terminals (defaults to os.Stdin)
	Reader *bufio.Reader
}

// NewApprover creates a terminal approver.
func NewApprover() *Approver {
	return &Approver{
		Reader: bufio.NewReader(os.Stdin),
	}
}

// severityColor maps approval severity to an ANSI color code.
func severityColor(s api.Severity) string {
	switch s {
	case api.SeverityCritical:
		return "1;31" // bold red
	case api.SeverityHigh:
		return "31"
	case api.SeverityMedium:
		return "33"
	default:
		return "36"
	}
}

// Prompt shows the approval request and blocks for the user's decision.
// Ctrl+C or a closed terminal resolves as deny: the safe default when the
// user walks away from a destructive prompt.
func (a *Approver) Prompt(req api.ApprovalRequest) (Decision, error) {
	color := severityColor(req.Severity)

	fmt.Println()
	fmt.Printf("\033[%sm╭──────────────────────────────────────────────────────────╮\033[0m\n", color)
	fmt.Printf("\033[%sm│\033[0m  \033[1m⚠️  Approval Required (%s)\033[0m\n", color, req.Severity)
	fmt.Printf("\033[%sm╰──────────────────────────────────────────────────────────╯\033[0m\n", color)
	fmt.Println()
	fmt.Printf("\033[1mReason:\033[0m %s\n", req.Reason)
	if cmd := toolInputSummary(req.ToolInput); cmd != "" {
		fmt.Printf("\033[1mAction:\033[0m %s\n", cmd)
	}
	fmt.Println()

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return a.interactivePrompt(req)
	}
	return a.simplePrompt()
}

// toolInputSummary renders the raw tool input for display.
func toolInputSummary(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var m map[string]interface{}
	if err := json.Unmarshal(input, &m); err != nil {
		return string(input)
	}
	if cmd, ok := m["command"].(string); ok {
		return cmd
	}
	parts := make([]string, 0, len(m))
	for k, v := range m {
		s := fmt.Sprintf("%s=%v", k, v)
		if len(s) > 100 {
			s = s[:100] + "..."
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func (a *Approver) interactivePrompt(req api.ApprovalRequest) (Decision, error) {
	model := approvalModel{options: []string{"Approve", "Deny"}}
	if req.Severity == api.SeverityHigh || req.Severity == api.SeverityCritical {
		// Destructive actions default the cursor to Deny.
		model.selected = 1
	}

	finalModel, err := tea.NewProgram(model).Run()
	if err != nil {
		return a.simplePrompt()
	}
	m, ok := finalModel.(approvalModel)
	if !ok || m.cancelled || !m.chosen {
		fmt.Println("\033[31m✗ Denied\033[0m")
		return DecisionDeny, nil
	}
	if m.selected == 0 {
		fmt.Println("\033[32m✓ Approved\033[0m")
		return DecisionApprove, nil
	}
	fmt.Println("\033[31m✗ Denied\033[0m")
	return DecisionDeny, nil
}

// approvalModel is the bubbletea model for the approval prompt.
type approvalModel struct {
	options   []string
	selected  int
	cancelled bool
	chosen    bool
}

func (m approvalModel) Init() tea.Cmd {
	return nil
}

func (m approvalModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			} else {
				m.selected = len(m.options) - 1
			}
		case "down", "j":
			if m.selected < len(m.options)-1 {
				m.selected++
			} else {
				m.selected = 0
			}
		case "enter":
			m.chosen = true
			return m, tea.Quit
		case "a", "A", "y", "Y":
			m.selected = 0
			m.chosen = true
			return m, tea.Quit
		case "d", "D", "n", "N":
			m.selected = 1
			m.chosen = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m approvalModel) View() string {
	s := strings.Builder{}
	for i, opt := range m.options {
		cursor := " "
		checked := "☐"
		if m.selected == i {
			cursor = "❯"
			checked = "☑"
		}

		var line string
		if m.selected == i {
			color := "1;32"
			if i == 1 {
				color = "1;31"
			}
			line = fmt.Sprintf("%s \033[%sm%s %s\033[0m", cursor, color, checked, opt)
		} else {
			line = fmt.Sprintf("  \033[2m%s %s\033[0m", checked, opt)
		}
		s.WriteString(line + "\n")
	}
	return s.String()
}

// simplePrompt for non-interactive terminals.
func (a *Approver) simplePrompt() (Decision, error) {
	fmt.Print("Approve? [y/N]: ")

	input, err := a.Reader.ReadString('\n')
	if err != nil {
		fmt.Println("\033[31m✗ Denied\033[0m")
		return DecisionDeny, err
	}

	switch strings.TrimSpace(strings.ToLower(input)) {
	case "y", "yes", "a", "approve":
		fmt.Println("\033[32m✓ Approved\033[0m")
		return DecisionApprove, nil
	default:
		fmt.Println("\033[31m✗ Denied\033[0m")
		return DecisionDeny, nil
	}
}
