package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/GSB-WEB/adcsim"
	"github.com/GSB-WEB/adcsim/monitor"
	"github.com/GSB-WEB/adcsim/publish"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#909090",
		Dark:  "#626262",
	}).Padding(0, 1)

	panelStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder())
	labelStyle = lipgloss.NewStyle().Width(18).Foreground(lipgloss.Color("#909090"))
	codeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F25D94"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
)

// Channel represents an entry in the channel list. It holds a reference to the server in order to
// switch the channel's unit online or offline.
type Channel struct {
	ch     *adcsim.Channel
	server *adcsim.ModbusServer
}

func (c Channel) Title() string {
	connected := " online"
	if !c.server.Online(c.ch.UnitID) {
		connected = "offline"
	}
	return fmt.Sprintf("%-10s %3d %5d %-7s", c.ch.Name, c.ch.UnitID, c.ch.Address, connected)
}

func (c Channel) Description() string {
	st := c.ch.State()
	return fmt.Sprintf("%.2f %s  %s  %d bit", st.Value, c.ch.Range.Unit, st.Signal, st.ADC.ResolutionBits)
}

func (c Channel) FilterValue() string {
	return c.ch.Name
}

type model struct {
	width, height int
	list          list.Model
	logger        *logger
	server        *adcsim.ModbusServer
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second*1, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) selected() (Channel, bool) {
	if len(m.list.Items()) == 0 {
		return Channel{}, false
	}
	c, ok := m.list.SelectedItem().(Channel)
	return c, ok
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.logger.resize(msg.Height - 16)
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		c, ok := m.selected()
		switch keypress := msg.String(); keypress {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "enter":
			if ok {
				ts := time.Now().Format(time.DateTime)
				if m.server.Online(c.ch.UnitID) {
					m.server.Disconnect(c.ch.UnitID)
					m.logger.Append(fmt.Sprintf("%s unit %d: disconnected", ts, c.ch.UnitID))
				} else {
					m.server.Connect(c.ch.UnitID)
					m.logger.Append(fmt.Sprintf("%s unit %d: connected", ts, c.ch.UnitID))
				}
			}
			return m, nil

		case "+", "-":
			if ok {
				step := 1.0
				if keypress == "-" {
					step = -1
				}
				c.ch.Step(step)
			}
			return m, nil

		case "s":
			if ok {
				if err := c.ch.SetSignal(c.ch.State().Signal.Next()); err != nil {
					slog.Error("set signal", "channel", c.ch.Name, "err", err)
				}
			}
			return m, nil

		case "b":
			if ok {
				adc := c.ch.State().ADC
				adc.ResolutionBits = adcsim.NextResolution(adc.ResolutionBits)
				if err := c.ch.SetADC(adc); err != nil {
					slog.Error("set resolution", "channel", c.ch.Name, "err", err)
				}
			}
			return m, nil
		}

	case tickMsg:
		cmds = append(cmds, tickCmd())
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if m.width == 0 {
		return "loading..."
	}
	help := helpStyle.Render("enter - connect • +/- - value • s - signal • b - bits • q - quit")

	listWidth := m.width * 35 / 100
	rightWidth := m.width - listWidth - 4
	bodyHeight := m.height - 3

	m.list.SetSize(listWidth, bodyHeight)
	left := panelStyle.Width(listWidth).Height(bodyHeight).Render(m.list.View())

	detail := panelStyle.Width(rightWidth).Render(m.renderDetail())
	logHeight := max(bodyHeight-lipgloss.Height(detail)-2, 1)
	logs := panelStyle.Width(rightWidth).Height(logHeight).Render(m.logger.String())

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, lipgloss.JoinVertical(lipgloss.Left, detail, logs))
	return lipgloss.JoinVertical(lipgloss.Top, body, help)
}

func (m model) renderDetail() string {
	c, ok := m.selected()
	if !ok {
		return "no channels configured"
	}
	st, r, err := c.ch.Sample()
	if err != nil {
		return warnStyle.Render(err.Error())
	}

	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
	}
	rows := []string{
		row("Channel", fmt.Sprintf("%s (unit %d, address %d)", c.ch.Name, c.ch.UnitID, c.ch.Address)),
		row("Range", fmt.Sprintf("%g .. %g %s", c.ch.Range.Min, c.ch.Range.Max, c.ch.Range.Unit)),
		row("Value", fmt.Sprintf("%.3f %s (%.2f %%)", st.Value, c.ch.Range.Unit, r.PercentOfVariable)),
		row("Signal", fmt.Sprintf("%s (%s)", st.Signal, st.Signal.Domain())),
		row("Electrical", fmt.Sprintf("%.4f V", r.ElectricalValue)),
	}
	if st.Signal.Domain() == adcsim.Current {
		rows = append(rows, row("Loop current", fmt.Sprintf("%.3f mA", r.LoopCurrent)))
	}
	rows = append(rows,
		row("Digital code", codeStyle.Render(fmt.Sprintf("%d / %d", r.DigitalCode, r.MaxDigitalCode))),
		row("Binary", r.BinaryString),
		row("Hex / Octal", r.Hex()+"  "+r.Octal()),
		row("% of reference", fmt.Sprintf("%.2f %%", r.PercentOfReference)),
		row("Resolution", fmt.Sprintf("%d bits, %d codes, Vref %.2f V", st.ADC.ResolutionBits, st.ADC.Combinations(), st.ADC.ReferenceVoltage)),
		row("LSB", fmt.Sprintf("%.6f mV (±%.6f mV)", st.ADC.ResolutionVolts()*1000, st.ADC.QuantizationError()*1000)),
	)
	if r.Clamped {
		rows = append(rows, warnStyle.Render("electrical value clamped to the converter window"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// logger keeps the most recent lines for the log panel.
type logger struct {
	mu       sync.Mutex
	items    []string
	maxItems int
}

func (l *logger) Append(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, s)
	if len(l.items) > l.maxItems {
		l.items = l.items[len(l.items)-l.maxItems:]
	}
}

func (l *logger) resize(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxItems = max(n, 1)
	if len(l.items) > l.maxItems {
		l.items = l.items[len(l.items)-l.maxItems:]
	}
}

func (l *logger) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.items, "\n")
}

// appendWriter routes slog output into the log panel.
type appendWriter struct {
	l *logger
}

func (w appendWriter) Write(p []byte) (int, error) {
	w.l.Append(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func main() {
	var configPath string
	var headless bool
	flag.StringVar(&configPath, "config", "config", "path to the configuration directory")
	flag.BoolVar(&headless, "headless", false, "run without the terminal ui, all units online")
	flag.Parse()
	if configPath == "" {
		flag.PrintDefaults()
		os.Exit(0)
	}

	config, err := adcsim.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}

	panel := &logger{maxItems: 20}
	var serverLog adcsim.Logger = panel
	if headless {
		sl, closer, err := adcsim.NewLogger(config.Log)
		if err != nil {
			log.Fatal(err)
		}
		defer closer.Close()
		slog.SetDefault(sl)
		serverLog = adcsim.SlogAppender{Log: sl}
	} else {
		slog.SetDefault(adcsim.NewLoggerTo(appendWriter{l: panel}, config.Log))
	}

	bank, err := adcsim.NewBank(config.Channels)
	if err != nil {
		log.Fatal(err)
	}

	var observer adcsim.Observer
	var metricsServer *http.Server
	if config.Metrics.Enabled {
		mon := monitor.NewMonitor(prometheus.NewRegistry())
		metricsServer = mon.StartMetricsServer(config.Metrics.Addr)
		observer = mon
	}

	ms, err := adcsim.NewModbusServer(config.Server.Url, bank, serverLog, observer)
	if err != nil {
		log.Fatal(err)
	}
	if err := ms.Start(); err != nil {
		log.Fatal(err)
	}
	slog.Info("modbus server started", "url", config.Server.Url, "channels", len(bank.Channels()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.Redis.Enabled {
		pub, err := publish.NewPublisher(config.Redis)
		if err != nil {
			slog.Error("redis publisher disabled", "err", err)
		} else {
			defer pub.Close()
			go pub.Run(ctx, bank, config.Redis.Duration())
		}
	}

	if headless {
		for _, unit := range bank.Units() {
			ms.Connect(unit)
		}
		<-ctx.Done()
	} else {
		var items []list.Item
		for _, ch := range bank.Channels() {
			items = append(items, Channel{ch: ch, server: ms})
		}
		l := list.New(items, list.NewDefaultDelegate(), 0, 0)
		l.SetShowStatusBar(false)
		l.SetFilteringEnabled(false)
		l.SetShowHelp(false)
		l.SetShowTitle(false)

		p := tea.NewProgram(model{list: l, logger: panel, server: ms}, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			slog.Error("terminal ui failed", "err", err)
		}
	}

	stop()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if err := ms.Stop(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Warn("stopping modbus server", "err", err)
	}
}
