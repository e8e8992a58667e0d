package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/akhaire21/marktools/internal/marketplace"
)

// Picker lets the user choose one solution of an estimate.
type Picker struct {
	query     string
	solutions []marketplace.SolutionSummary
	table     table.Model
	width     int

	chosen    string
	cancelled bool

	titleStyle  lipgloss.Style
	detailStyle lipgloss.Style
	labelStyle  lipgloss.Style
	valueStyle  lipgloss.Style
	hintStyle   lipgloss.Style
	savingStyle lipgloss.Style
}

// NewPicker creates a Picker over the solutions of resp.
func NewPicker(resp *marketplace.EstimateResponse) *Picker {
	columns := []table.Column{
		{Title: "ID", Width: 7},
		{Title: "Strategy", Width: 10},
		{Title: "Confidence", Width: 10},
		{Title: "Cost", Width: 8},
		{Title: "Savings", Width: 8},
		{Title: "Workflows", Width: 36},
	}

	rows := make([]table.Row, 0, len(resp.Solutions))
	for _, sol := range resp.Solutions {
		rows = append(rows, solutionRow(sol))
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(min(len(rows), 8)+1),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("236")).
		Bold(true)
	t.SetStyles(styles)

	query := ""
	if q, ok := resp.Query.Sanitized["query"].(string); ok {
		query = q
	}

	return &Picker{
		query:     query,
		solutions: resp.Solutions,
		table:     t,
		width:     80,

		titleStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4")).
			Bold(true),
		detailStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		savingStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")), // Green
	}
}

func solutionRow(sol marketplace.SolutionSummary) table.Row {
	ids := make([]string, 0, len(sol.WorkflowsSummary))
	for _, w := range sol.WorkflowsSummary {
		ids = append(ids, w.WorkflowID)
	}
	return table.Row{
		sol.SolutionID,
		sol.Strategy,
		fmt.Sprintf("%.2f", sol.ConfidenceScore),
		fmt.Sprintf("%d", sol.Pricing.TotalCostTokens),
		fmt.Sprintf("%d%%", sol.Pricing.SavingsPercentage),
		truncate(strings.Join(ids, ", "), 36),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// Init implements tea.Model.
func (p *Picker) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (p *Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		return p, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			p.cancelled = true
			return p, tea.Quit
		case "enter":
			if sol, ok := p.selected(); ok {
				p.chosen = sol.SolutionID
				return p, tea.Quit
			}
			return p, nil
		}
	}

	var cmd tea.Cmd
	p.table, cmd = p.table.Update(msg)
	return p, cmd
}

func (p *Picker) selected() (marketplace.SolutionSummary, bool) {
	i := p.table.Cursor()
	if i < 0 || i >= len(p.solutions) {
		return marketplace.SolutionSummary{}, false
	}
	return p.solutions[i], true
}

// View implements tea.Model.
func (p *Picker) View() string {
	var b strings.Builder

	b.WriteString(p.titleStyle.Render("Choose a solution"))
	if p.query != "" {
		b.WriteString(p.labelStyle.Render("  for " + truncate(p.query, max(20, p.width-24))))
	}
	b.WriteString("\n\n")
	b.WriteString(p.table.View())
	b.WriteString("\n")

	if sol, ok := p.selected(); ok {
		b.WriteString(p.detailStyle.Render(p.detail(sol)))
		b.WriteString("\n")
	}

	b.WriteString(p.hintStyle.Render("↑/↓ move • enter buy • q cancel"))
	b.WriteString("\n")
	return b.String()
}

func (p *Picker) detail(sol marketplace.SolutionSummary) string {
	var lines []string
	field := func(label, value string) {
		lines = append(lines, p.labelStyle.Render(label+": ")+p.valueStyle.Render(value))
	}

	field("Coverage", sol.Structure.Coverage)
	field("Download", fmt.Sprintf("%d tokens", sol.Pricing.DownloadCost))
	field("Execution", fmt.Sprintf("%d tokens", sol.Pricing.ExecutionCost))
	field("From scratch", fmt.Sprintf("%d tokens", sol.Pricing.FromScratchEstimate))
	lines = append(lines, p.labelStyle.Render("Savings: ")+
		p.savingStyle.Render(fmt.Sprintf("%d tokens (%d%%)", sol.Pricing.SavingsTokens, sol.Pricing.SavingsPercentage)))

	for i, w := range sol.WorkflowsSummary {
		lines = append(lines, fmt.Sprintf("%d. %s %s",
			i+1,
			p.valueStyle.Render(w.WorkflowTitle),
			p.labelStyle.Render(fmt.Sprintf("(%s, %d tokens) for %q", w.WorkflowID, w.TokenCost, w.SubtaskDescription))))
	}
	return strings.Join(lines, "\n")
}

// Chosen returns the selected solution ID, or false if the user cancelled.
func (p *Picker) Chosen() (string, bool) {
	if p.cancelled || p.chosen == "" {
		return "", false
	}
	return p.chosen, true
}

// Pick runs the picker in the terminal and returns the chosen solution ID.
// It returns false when the user cancels or there is nothing to choose.
func Pick(resp *marketplace.EstimateResponse) (string, bool, error) {
	if len(resp.Solutions) == 0 {
		return "", false, nil
	}

	picker := NewPicker(resp)
	final, err := tea.NewProgram(picker).Run()
	if err != nil {
		return "", false, fmt.Errorf("run solution picker: %w", err)
	}
	id, ok := final.(*Picker).Chosen()
	return id, ok, nil
}
