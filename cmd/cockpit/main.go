// Cockpit provides a TUI to watch and move the channels of a running adcsim server.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/GSB-WEB/adcsim"
	"github.com/GSB-WEB/adcsim/modbus"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	focusChannelList = iota
	focusValueInput
	ratioLeftPanelWidth = 0.6
)

var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.RoundedBorder())

var activeStyle = baseStyle.
	BorderForeground(lipgloss.Color("white"))

var passiveStyle = baseStyle.
	BorderForeground(lipgloss.Color("240"))

var helpStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
	Light: "#909090",
	Dark:  "#626262",
}).Padding(0, 1)

type channelReader interface {
	ReadChannels(channels []adcsim.ChannelConfig) []modbus.Reading
	WriteValue(ch adcsim.ChannelConfig, value float32) error
	Close()
}

func main() {
	configPath := flag.String("config", "config", "config base directory")
	help := flag.Bool("help", false, "print usage")
	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}

	config, err := adcsim.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if len(config.Channels) == 0 {
		log.Fatal("no channels configured")
	}

	adapter, err := modbus.NewAdapter(config.Server)
	if err != nil {
		log.Fatal(err)
	}
	defer adapter.Close()

	m := newModel(adapter, config.Channels)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Println("Error running program:", err)
		os.Exit(1)
	}
}

type model struct {
	port            channelReader
	channels        []adcsim.ChannelConfig
	readings        []modbus.Reading
	focus           int
	channelTable    table.Model
	current         modbus.Reading
	valueInput      textinput.Model
	status          string
	fullHeight      int
	fullWidth       int
	leftPanelWidth  int
	rightPanelWidth int
}

func newModel(port channelReader, channels []adcsim.ChannelConfig) model {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(true)

	columns := []table.Column{
		{Title: "Channel", Width: 10},
		{Title: "Unit", Width: 4},
		{Title: "Address", Width: 7},
		{Title: "Signal", Width: 7},
		{Title: "Value", Width: 10},
		{Title: "Code", Width: 10},
		{Title: "Volts", Width: 8},
	}

	readings := port.ReadChannels(channels)
	channelTable := table.New(
		table.WithColumns(columns),
		table.WithRows(readingsToTableRows(readings)),
		table.WithFocused(true),
	)
	channelTable.SetStyles(s)

	return model{
		port:         port,
		channels:     channels,
		readings:     readings,
		channelTable: channelTable,
		valueInput:   textinput.New(),
		focus:        focusChannelList,
	}
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second*1, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd { return tickCmd() }

func (m model) selected() (modbus.Reading, bool) {
	i := m.channelTable.Cursor()
	if i < 0 || i >= len(m.readings) {
		return modbus.Reading{}, false
	}
	return m.readings[i], true
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmds []tea.Cmd
		cmd  tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.fullHeight = msg.Height
		m.fullWidth = msg.Width

		m.leftPanelWidth = int(float32(m.fullWidth) * ratioLeftPanelWidth)
		m.rightPanelWidth = m.fullWidth - m.leftPanelWidth - 4
		m.channelTable.SetHeight(m.fullHeight - 4)
		return m, nil

	case tea.KeyMsg:
		switch m.focus {
		case focusChannelList:
			m.channelTable, cmd = m.channelTable.Update(msg)
			cmds = append(cmds, cmd)

			switch msg.String() {
			case "q", "ctrl+c":
				return m, tea.Quit
			case "enter":
				r, ok := m.selected()
				if !ok {
					break
				}
				m.current = r
				m.valueInput.SetValue(strconv.FormatFloat(float64(r.Value), 'g', -1, 32))
				m.valueInput.SetCursor(len(m.valueInput.Value()))
				m.valueInput.Focus()
				m.channelTable.Blur()
				m.focus = focusValueInput
			}

		case focusValueInput:
			m.valueInput, cmd = m.valueInput.Update(msg)
			cmds = append(cmds, cmd)

			switch msg.String() {
			case "esc":
				m.channelTable.Focus()
				m.focus = focusChannelList
			case "enter":
				v, err := toFloat32(m.valueInput.Value())
				if err != nil {
					m.status = err.Error()
					break
				}
				if err := m.port.WriteValue(m.current.Channel, v); err != nil {
					slog.Error("write value", "channel", m.current.Channel.Name, "err", err)
					m.status = err.Error()
				} else {
					m.status = fmt.Sprintf("%s set to %g", m.current.Channel.Name, v)
				}
				m.readings = m.port.ReadChannels(m.channels)
				m.channelTable.SetRows(readingsToTableRows(m.readings))
				m.channelTable.Focus()
				m.focus = focusChannelList
			}
		}

	case tickMsg:
		m.readings = m.port.ReadChannels(m.channels)
		m.channelTable.SetRows(readingsToTableRows(m.readings))
		cmds = append(cmds, tickCmd())
	}

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	panels := lipgloss.JoinVertical(lipgloss.Top, m.renderReading(), m.renderValueForm())
	return lipgloss.JoinHorizontal(lipgloss.Top, m.renderChannelTable(), panels)
}

func (m model) renderChannelTable() string {
	var style lipgloss.Style
	if m.focus == focusChannelList {
		style = activeStyle
	} else {
		style = passiveStyle
	}
	style = style.Height(m.fullHeight - 4).Width(m.leftPanelWidth)
	return style.Render(m.channelTable.View()) + "\n  " + m.channelTable.HelpView() + helpStyle.Render(" • <enter> set value") + "\n"
}

func (m model) panelHeight() int {
	return max((m.fullHeight-5)/2, 3)
}

func (m model) renderReading() string {
	var s string
	if r, ok := m.selected(); ok {
		lines := []string{
			fmt.Sprintf("Channel : %s (unit %d, address %d)", r.Channel.Name, r.Channel.UnitID, r.Channel.Address),
			fmt.Sprintf("Range   : %g .. %g %s", r.Channel.Min, r.Channel.Max, r.Channel.Unit),
			fmt.Sprintf("Value   : %g %s", r.Value, r.Channel.Unit),
			fmt.Sprintf("Signal  : %s", r.Signal),
			fmt.Sprintf("Volts   : %.4f", r.Volts),
			fmt.Sprintf("Code    : %d", r.Code),
			fmt.Sprintf("Binary  : %s (%d bits)", r.Binary(), r.Bits),
			fmt.Sprintf("Hex     : %s", r.Hex()),
			fmt.Sprintf("Octal   : %s", r.Octal()),
			fmt.Sprintf("Clamped : %t", r.Clamped),
			fmt.Sprintf("Updated : %s", r.Received.Format("15:04:05")),
		}
		s = strings.Join(lines, "\n")
	} else {
		s = "no readings, is the server running and the unit online?"
	}
	style := passiveStyle.Border(generateBorder("Reading", m.rightPanelWidth))
	return style.Padding(0, 1).Height(m.panelHeight()).Width(m.rightPanelWidth).Render(s)
}

func (m model) renderValueForm() string {
	var style lipgloss.Style
	if m.focus == focusValueInput {
		style = activeStyle
	} else {
		style = passiveStyle
	}

	s := ""
	if m.focus == focusValueInput {
		s = fmt.Sprintf("\nChannel: %s\n", m.current.Channel.Name)
		s = fmt.Sprintf("%sRange  : %g .. %g %s\n\n", s, m.current.Channel.Min, m.current.Channel.Max, m.current.Channel.Unit)
		m.valueInput.Prompt = "Value  : "
		s += m.valueInput.View()
	}
	if m.status != "" {
		s += "\n\n" + helpStyle.Render(m.status)
	}

	style = style.Border(generateBorder("Edit Value", m.rightPanelWidth))
	return lipgloss.JoinVertical(
		lipgloss.Top,
		style.Padding(0, 1).Height(m.panelHeight()).Width(m.rightPanelWidth).Render(s),
		helpStyle.Render("enter - save • esc - discard"))
}

func generateBorder(title string, width int) lipgloss.Border {
	if width < 0 {
		return lipgloss.RoundedBorder()
	}
	border := lipgloss.RoundedBorder()
	border.Top = border.Top + border.MiddleRight + " " + title + " " + border.MiddleLeft + strings.Repeat(border.Top, width)
	return border
}

func toFloat32(s string) (float32, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return float32(f), nil
}

func readingsToTableRows(readings []modbus.Reading) []table.Row {
	var rows []table.Row
	for _, r := range readings {
		rows = append(rows, buildTableRow(r))
	}
	return rows
}

func buildTableRow(r modbus.Reading) table.Row {
	return table.Row{
		r.Channel.Name,
		fmt.Sprintf("%d", r.Channel.UnitID),
		fmt.Sprintf("%d", r.Channel.Address),
		r.Signal.String(),
		fmt.Sprintf("%.3f", r.Value),
		fmt.Sprintf("%d", r.Code),
		fmt.Sprintf("%.3f", r.Volts),
	}
}
