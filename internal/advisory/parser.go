package advisory

import (
	"strconv"
	"strings"
)

// Протокол ответа модели: первая строка — вердикт (APPROVE/REJECT для входа,
// EXIT/HOLD для выхода), дальше обоснование. Для входа модель может добавить
// строки ADJUST_LEVERAGE: n и ADJUST_SIZE: pct.

type entryVerdict struct {
	approved         bool
	reasoning        string
	adjustedLeverage int
	adjustedSizePct  float64
}

func parseEntryResponse(response string) entryVerdict {
	lines := strings.Split(strings.TrimSpace(response), "\n")

	v := entryVerdict{adjustedSizePct: 100}
	if len(lines) == 0 {
		return v
	}

	v.approved = strings.Contains(strings.ToUpper(strings.TrimSpace(lines[0])), "APPROVE")
	v.reasoning = strings.TrimSpace(strings.Join(lines[1:], "\n"))

	for _, line := range lines {
		upper := strings.ToUpper(line)
		switch {
		case strings.Contains(upper, "ADJUST_LEVERAGE"):
			if n, ok := parseAdjustment(line); ok {
				v.adjustedLeverage = int(n)
			}
		case strings.Contains(upper, "ADJUST_SIZE"):
			if n, ok := parseAdjustment(line); ok {
				v.adjustedSizePct = n
			}
		}
	}

	return v
}

func parseExitResponse(response string) (shouldExit bool, reasoning string) {
	lines := strings.Split(strings.TrimSpace(response), "\n")
	if len(lines) == 0 {
		return false, ""
	}

	shouldExit = strings.Contains(strings.ToUpper(strings.TrimSpace(lines[0])), "EXIT")
	reasoning = strings.TrimSpace(strings.Join(lines[1:], "\n"))
	return shouldExit, reasoning
}

func parseAdjustment(line string) (float64, bool) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
