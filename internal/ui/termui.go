package ui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/skalibog/vpscalp/internal/config"
	"github.com/skalibog/vpscalp/internal/position"
	"github.com/skalibog/vpscalp/internal/scanner"
	"github.com/skalibog/vpscalp/pkg/logger"
	"github.com/skalibog/vpscalp/pkg/models"
)

// Стили UI
var (
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)

	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#ffffff")).
				Background(secondaryColor).
				Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

// TermUI представляет терминальный интерфейс
type TermUI struct {
	scanner   *scanner.Scanner
	manager   *position.Manager
	signals   map[string]*models.Signal
	positions []models.Position
	dataMutex sync.RWMutex
	logs      []string
	logsMutex sync.RWMutex
	config    config.UIConfig
	program   *tea.Program
	width     int
	height    int
	logFile   string
}

// Сообщения для обновления UI
type refreshMsg struct{}

// bubbleModel - модель для bubbletea
type bubbleModel struct {
	ui *TermUI
}

// NewTermUI создает терминальный интерфейс
func NewTermUI(cfg config.UIConfig, scan *scanner.Scanner, manager *position.Manager) (*TermUI, error) {
	ui := &TermUI{
		scanner: scan,
		manager: manager,
		signals: make(map[string]*models.Signal),
		logs:    []string{"VPScalp запущен. Ожидание данных..."},
		config:  cfg,
		width:   120,
		height:  40,
		logFile: logger.JSONLogFile,
	}

	refresh := time.Duration(cfg.RefreshRate) * time.Millisecond
	if refresh <= 0 {
		refresh = time.Second
	}

	// Таймер обновления данных и логов
	go func() {
		ticker := time.NewTicker(refresh)
		defer ticker.Stop()

		for range ticker.C {
			ui.refreshData()
			if err := ui.loadLogsFromFile(); err != nil {
				continue
			}
			if ui.program != nil {
				ui.program.Send(refreshMsg{})
			}
		}
	}()

	return ui, nil
}

// Start запускает UI и блокирует до выхода
func (ui *TermUI) Start() {
	model := bubbleModel{ui: ui}
	ui.program = tea.NewProgram(model, tea.WithAltScreen())

	if _, err := ui.program.Run(); err != nil {
		fmt.Printf("Ошибка запуска UI: %v\n", err)
	}
}

// Stop останавливает UI
func (ui *TermUI) Stop() {
	if ui.program != nil {
		ui.program.Quit()
	}
}

func (ui *TermUI) refreshData() {
	signals := ui.scanner.LatestSignals()
	positions := ui.manager.OpenPositions()

	ui.dataMutex.Lock()
	ui.signals = signals
	ui.positions = positions
	ui.dataMutex.Unlock()
}

// loadLogsFromFile перечитывает JSON-лог и форматирует последние записи
func (ui *TermUI) loadLogsFromFile() error {
	file, err := os.Open(ui.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var logs []string

	// Регулярное выражение для удаления ANSI-цветов
	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)

	for scanner.Scan() {
		line := scanner.Text()

		var zapLog map[string]interface{}
		if err := json.Unmarshal([]byte(line), &zapLog); err == nil {
			level, _ := zapLog["level"].(string)
			ts, _ := zapLog["ts"].(string)
			msg, _ := zapLog["msg"].(string)

			level = ansiRegex.ReplaceAllString(level, "")

			timestamp := ""
			if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
				timestamp = t.Format("15:04:05")
			}

			formattedMsg := fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)

			for k, v := range zapLog {
				if k != "level" && k != "ts" && k != "msg" && k != "caller" {
					formattedMsg += fmt.Sprintf(" (%s: %v)", k, v)
				}
			}

			logs = append(logs, formattedMsg)
		} else {
			logs = append(logs, line)
		}

		if len(logs) > 50 {
			logs = logs[1:]
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	ui.logsMutex.Lock()
	defer ui.logsMutex.Unlock()

	if len(logs) > 0 {
		ui.logs = logs
	}

	return nil
}

// Методы для bubbletea
func (m bubbleModel) Init() tea.Cmd {
	return nil
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.ui.width = msg.Width
		m.ui.height = msg.Height

	case refreshMsg:
		// Просто обновляем UI
	}

	return m, nil
}

func (m bubbleModel) View() string {
	m.ui.dataMutex.RLock()
	m.ui.logsMutex.RLock()
	defer m.ui.dataMutex.RUnlock()
	defer m.ui.logsMutex.RUnlock()

	title := titleStyle.Render("VPScalp - Volume Profile Mean Reversion")
	signals := renderSignalsSection(m.ui.signals)
	positions := renderPositionsSection(m.ui.positions)
	logs := renderLogsSection(m.ui.logs)
	footer := footerStyle.Render("Клавиши: Q - выход")

	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			signals,
			"\n",
			positions,
			"\n",
			logs,
			"\n",
			footer,
		),
	)
}

func renderSignalsSection(signals map[string]*models.Signal) string {
	header := sectionHeaderStyle.Render("СИГНАЛЫ")
	content := strings.Builder{}

	symbols := sortedSymbols(signals)

	if len(symbols) == 0 {
		content.WriteString("  Ожидание данных...\n")
	} else {
		for _, symbol := range symbols {
			sig := signals[symbol]

			if sig.IsNeutral() {
				line := fmt.Sprintf("  %s: %s — %s",
					symbol, formatDirection(sig.Direction), sig.Reasoning)
				content.WriteString(line + "\n")
				continue
			}

			line := fmt.Sprintf("  %s [%s]: %s %s Вход: %.2f Цель: %.2f Стоп: %.2f R:R %.2f Плечо: %dx",
				symbol, sig.Timeframe, formatDirection(sig.Direction),
				string(sig.Metadata.EntryLevel),
				sig.EntryPrice, sig.TargetPrice, sig.StopLoss,
				sig.RiskReward, sig.Leverage)
			content.WriteString(line + "\n")
		}
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

func renderPositionsSection(positions []models.Position) string {
	header := sectionHeaderStyle.Render("ПОЗИЦИИ")
	content := strings.Builder{}

	if len(positions) == 0 {
		content.WriteString("  Нет открытых позиций\n")
	} else {
		sort.Slice(positions, func(i, j int) bool {
			return positions[i].Symbol < positions[j].Symbol
		})
		for _, p := range positions {
			line := fmt.Sprintf("  %s: %s Вход: %.2f TP: %.2f SL: %.2f PnL: %+.2f Плечо: %dx Свечей: %d/%d",
				p.Symbol, formatDirection(p.Direction),
				p.EntryPrice, p.TakeProfit, p.StopLoss, p.PnL,
				p.Leverage, p.CandlesHeld, p.TimeoutCandles)
			content.WriteString(line + "\n")
		}
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

func renderLogsSection(logs []string) string {
	header := sectionHeaderStyle.Render("ЛОГИ")
	content := strings.Builder{}

	maxLogsToShow := 15

	start := 0
	if len(logs) > maxLogsToShow {
		start = len(logs) - maxLogsToShow
	}

	for i := start; i < len(logs); i++ {
		log := logs[i]

		// Выделение по уровню логирования
		if strings.Contains(log, "[ERROR]") {
			log = lipgloss.NewStyle().Foreground(errorColor).Render(log)
		} else if strings.Contains(log, "[INFO]") {
			log = lipgloss.NewStyle().Foreground(successColor).Render(log)
		} else if strings.Contains(log, "[WARN]") {
			log = lipgloss.NewStyle().Foreground(warningColor).Render(log)
		} else if strings.Contains(log, "[DEBUG]") {
			log = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(log)
		}

		content.WriteString("  " + log + "\n")
	}

	return sectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

func formatDirection(d models.Direction) string {
	var style lipgloss.Style

	switch d {
	case models.DirectionLong:
		style = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	case models.DirectionShort:
		style = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	default:
		style = lipgloss.NewStyle().Foreground(warningColor)
	}

	return style.Render(string(d))
}

func sortedSymbols(signals map[string]*models.Signal) []string {
	symbols := make([]string, 0, len(signals))
	for symbol := range signals {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
