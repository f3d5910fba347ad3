package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/urfave/cli/v3"

	"github.com/msgproxy/vchannel/internal/config"
)

// pollInterval is how often the dashboard refreshes channel stats.
const pollInterval = time.Second

var (
	statusBorderColor = lipgloss.AdaptiveColor{Light: "#6C6CFF", Dark: "#6C6CFF"}
	statusHeaderStyle = lipgloss.NewStyle().Bold(true)
	statusOkStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#006400", Dark: "#9FF29A"})
	statusErrStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#8B0000", Dark: "#FF6B6B"})
	statusBaseCell    = lipgloss.NewStyle().Padding(0, 1)
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "live dashboard polling a running proxy's channel stats",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Aliases: []string{"H"}, Value: "localhost"},
			&cli.IntFlag{Name: "port", Aliases: []string{"P"}, Value: 8080},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.example.yaml"},
		},
		Action: runStatus,
	}
}

func runStatus(_ context.Context, cmd *cli.Command) error {
	base := fmt.Sprintf("http://%s:%d", cmd.String("host"), cmd.Int("port"))

	var names []string
	if raw, err := config.Load(cmd.String("config")); err == nil {
		for name := range raw {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	m := newStatusModel(base, names)
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

type channelStatView struct {
	Name    string
	Running bool
	Sent    int64
	Reject  int64
	InQueue int
	LastErr string
}

type statTickMsg struct {
	rows []channelStatView
	err  error
}

type statusModel struct {
	baseURL string
	names   []string
	client  *http.Client
	rows    []channelStatView
	err     error
	width   int
	loaded  bool
	spinner spinner.Model
}

func newStatusModel(baseURL string, names []string) *statusModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusHeaderStyle
	return &statusModel{
		baseURL: baseURL,
		names:   names,
		client:  &http.Client{Timeout: 3 * time.Second},
		spinner: s,
	}
}

func (m *statusModel) Init() tea.Cmd {
	return tea.Batch(m.poll(), m.spinner.Tick)
}

func (m *statusModel) poll() tea.Cmd {
	return func() tea.Msg {
		rows, err := fetchChannelStats(m.client, m.baseURL, m.names)
		return statTickMsg{rows: rows, err: err}
	}
}

func (m *statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case statTickMsg:
		m.rows, m.err = msg.rows, msg.err
		m.loaded = true
		return m, tea.Tick(pollInterval, func(time.Time) tea.Msg { return m.poll()() })
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *statusModel) View() string {
	if !m.loaded && m.err == nil {
		return fmt.Sprintf("%s fetching channel stats from %s...\n", m.spinner.View(), m.baseURL)
	}
	if m.err != nil {
		return statusErrStyle.Render(fmt.Sprintf("failed to reach %s: %v\n\n(press q to quit)", m.baseURL, m.err))
	}

	headers := []string{
		statusHeaderStyle.Render("channel"),
		statusHeaderStyle.Render("state"),
		statusHeaderStyle.Render("sent"),
		statusHeaderStyle.Render("rejected"),
		statusHeaderStyle.Render("in_queue"),
		statusHeaderStyle.Render("last_error"),
	}

	rows := make([][]string, 0, len(m.rows))
	for _, r := range m.rows {
		state := statusErrStyle.Render("stopped")
		if r.Running {
			state = statusOkStyle.Render("running")
		}
		rows = append(rows, []string{
			r.Name, state,
			fmt.Sprintf("%d", r.Sent),
			fmt.Sprintf("%d", r.Reject),
			fmt.Sprintf("%d", r.InQueue),
			r.LastErr,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(statusBorderColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style { return statusBaseCell })

	return t.Render() + "\n(press q to quit)\n"
}

type channelStatJSON struct {
	ChannelStat struct {
		WasSend     int64 `json:"was_send"`
		WasRejected int64 `json:"was_rejected"`
		InQueue     int   `json:"in_queue"`
	} `json:"channel_stat"`
	IsRunning bool `json:"is_running"`
	LastError *struct {
		Reason string `json:"reason"`
	} `json:"last_error"`
}

// fetchChannelStats calls /api/stat/<channel> for each name. Admission has
// no channel-listing endpoint (spec §4.8 exposes per-channel stat only), so
// the dashboard is handed the channel names straight from the same config
// file `mproxy serve` was started with.
func fetchChannelStats(client *http.Client, baseURL string, names []string) ([]channelStatView, error) {
	ping, err := client.Get(baseURL + "/api/ping")
	if err != nil {
		return nil, err
	}
	ping.Body.Close()

	rows := make([]channelStatView, 0, len(names))
	for _, name := range names {
		resp, err := client.Get(baseURL + "/api/stat/" + name)
		if err != nil {
			return nil, err
		}
		var body channelStatJSON
		decodeErr := json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if decodeErr != nil {
			continue
		}

		view := channelStatView{
			Name:    name,
			Running: body.IsRunning,
			Sent:    body.ChannelStat.WasSend,
			Reject:  body.ChannelStat.WasRejected,
			InQueue: body.ChannelStat.InQueue,
		}
		if body.LastError != nil {
			view.LastErr = body.LastError.Reason
		}
		rows = append(rows, view)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}
