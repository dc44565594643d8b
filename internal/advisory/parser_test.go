package advisory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEntryApprove(t *testing.T) {
	v := parseEntryResponse("APPROVE\nПрофиль развит, соотношение риска хорошее.")

	assert.True(t, v.approved)
	assert.Equal(t, "Профиль развит, соотношение риска хорошее.", v.reasoning)
	assert.Equal(t, 0, v.adjustedLeverage)
	assert.InDelta(t, 100.0, v.adjustedSizePct, 1e-9)
}

func TestParseEntryReject(t *testing.T) {
	v := parseEntryResponse("REJECT\nСлабый профиль.")

	assert.False(t, v.approved)
	assert.Equal(t, "Слабый профиль.", v.reasoning)
}

func TestParseEntryAdjustments(t *testing.T) {
	response := "APPROVE\nХороший сетап, но плечо великовато.\nADJUST_LEVERAGE: 5\nADJUST_SIZE: 50"
	v := parseEntryResponse(response)

	assert.True(t, v.approved)
	assert.Equal(t, 5, v.adjustedLeverage)
	assert.InDelta(t, 50.0, v.adjustedSizePct, 1e-9)
}

func TestParseEntryInvalidAdjustments(t *testing.T) {
	response := "APPROVE\nADJUST_LEVERAGE: abc\nADJUST_SIZE: -10"
	v := parseEntryResponse(response)

	assert.True(t, v.approved)
	assert.Equal(t, 0, v.adjustedLeverage)
	assert.InDelta(t, 100.0, v.adjustedSizePct, 1e-9)
}

func TestParseEntryVerdictOnFirstLineOnly(t *testing.T) {
	// Слово APPROVE в обосновании не делает отказ одобрением
	v := parseEntryResponse("REJECT\nI would APPROVE this with lower leverage.")
	assert.False(t, v.approved)
}

func TestParseEntryLowercaseAndPadding(t *testing.T) {
	v := parseEntryResponse("  approve  \nok")
	assert.True(t, v.approved)
}

func TestParseExit(t *testing.T) {
	shouldExit, reasoning := parseExitResponse("EXIT\nЦена вернулась к POC.")
	assert.True(t, shouldExit)
	assert.Equal(t, "Цена вернулась к POC.", reasoning)

	shouldExit, reasoning = parseExitResponse("HOLD\nСетап еще не отыгран.")
	assert.False(t, shouldExit)
	assert.Equal(t, "Сетап еще не отыгран.", reasoning)
}

func TestParseExitEmpty(t *testing.T) {
	shouldExit, reasoning := parseExitResponse("")
	assert.False(t, shouldExit)
	assert.Empty(t, reasoning)
}

func TestParseAdjustment(t *testing.T) {
	n, ok := parseAdjustment("ADJUST_LEVERAGE: 7")
	assert.True(t, ok)
	assert.InDelta(t, 7.0, n, 1e-9)

	_, ok = parseAdjustment("ADJUST_LEVERAGE 7")
	assert.False(t, ok)

	_, ok = parseAdjustment("ADJUST_SIZE: 0")
	assert.False(t, ok)
}
