package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/skalibog/vpscalp/internal/config"
	"github.com/skalibog/vpscalp/pkg/logger"
	"github.com/skalibog/vpscalp/pkg/models"
	"go.uber.org/zap"
)

const entrySystemPrompt = `You are an AI trading analyst specializing in volume profile mean reversion strategies.

Your task is to analyze trading signals from a Volume Profile Mean Reversion strategy and make a final decision on whether to execute the trade.

You must be VERY CRITICAL and only approve high-quality setups. When in doubt, REJECT the trade.

Consider:
1. Volume Profile Quality - Is the profile truly "developed"? (Score should be >75 for high confidence)
2. Mean Reversion Logic - Does the price action support mean reversion to POC?
3. Risk/Reward Ratio - Is the R:R favorable? (Minimum 2:1)
4. ATR Volatility - Is volatility in the optimal range?
5. Entry Level - Are we entering at ±1σ or ±2σ? (±2σ is better)
6. Leverage Appropriateness - Is the suggested leverage reasonable?

Response Format:
Line 1: APPROVE or REJECT
Line 2-N: Your detailed reasoning

If APPROVE, you may suggest adjustments:
- ADJUST_LEVERAGE: <new_leverage>
- ADJUST_SIZE: <percentage>

Be decisive, analytical, and prioritize capital preservation.`

const exitSystemPrompt = `You are an AI analyst monitoring an open trading position.

Your task: Decide if we should EXIT this position NOW or HOLD it.

Consider:
1. Unrealized PnL - Are we at a good profit/loss point?
2. Time in trade - Has the setup played out?
3. Distance to targets - Are we close to TP/SL?
4. Mean reversion logic - Did price revert to POC already?

Response Format:
Line 1: EXIT or HOLD
Line 2-N: Your reasoning

Be decisive. Protect capital but don't exit winners early.`

// DecisionSink журнал решений советника
type DecisionSink interface {
	SaveDecision(ctx context.Context, decisionID, kind, prompt, response string) error
}

// DeepSeekClient адаптер советника поверх chat-completions API DeepSeek
type DeepSeekClient struct {
	cfg        config.AdvisoryConfig
	httpClient *http.Client
	sink       DecisionSink
}

// NewDeepSeekClient создает клиента советника
func NewDeepSeekClient(cfg config.AdvisoryConfig, sink DecisionSink) *DeepSeekClient {
	return &DeepSeekClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		sink:       sink,
	}
}

// ConfirmEntry запрашивает у модели подтверждение входа по сигналу
func (c *DeepSeekClient) ConfirmEntry(ctx context.Context, sig *models.Signal) (*models.EntryDecision, error) {
	prompt := entryPrompt(sig)

	response, err := c.complete(ctx, entrySystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса к советнику: %w", err)
	}

	decisionID := uuid.NewString()
	c.logDecision(ctx, decisionID, "entry", prompt, response)

	v := parseEntryResponse(response)
	logger.Info("Советник оценил сигнал",
		zap.String("symbol", sig.Symbol),
		zap.Bool("approved", v.approved),
		zap.Int("adjusted_leverage", v.adjustedLeverage),
		zap.Float64("adjusted_size_pct", v.adjustedSizePct))

	return &models.EntryDecision{
		DecisionID:       decisionID,
		Approved:         v.approved,
		Reasoning:        v.reasoning,
		AdjustedLeverage: v.adjustedLeverage,
		AdjustedSizePct:  v.adjustedSizePct,
	}, nil
}

// ConfirmExit запрашивает у модели подтверждение выхода из позиции
func (c *DeepSeekClient) ConfirmExit(ctx context.Context, p *models.Position, update *models.PositionUpdate) (*models.ExitDecision, error) {
	prompt := exitPrompt(p, update)

	response, err := c.complete(ctx, exitSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса к советнику: %w", err)
	}

	decisionID := uuid.NewString()
	c.logDecision(ctx, decisionID, "exit", prompt, response)

	shouldExit, reasoning := parseExitResponse(response)
	logger.Info("Советник оценил выход",
		zap.String("symbol", p.Symbol),
		zap.Bool("should_exit", shouldExit))

	return &models.ExitDecision{
		DecisionID: decisionID,
		ShouldExit: shouldExit,
		Reasoning:  reasoning,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// complete выполняет запрос к модели с повторами на сетевых сбоях
func (c *DeepSeekClient) complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	b := &backoff.Backoff{Min: time.Second, Max: 10 * time.Second, Factor: 2}
	var lastErr error

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		content, err := c.doRequest(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err
		logger.Warn("Запрос к советнику не прошел", zap.Int("attempt", attempt+1), zap.Error(err))
	}

	return "", lastErr
}

func (c *DeepSeekClient) doRequest(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("советник ответил статусом %d: %s", resp.StatusCode, data)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("ошибка разбора ответа советника: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("пустой ответ советника")
	}

	return parsed.Choices[0].Message.Content, nil
}

func (c *DeepSeekClient) logDecision(ctx context.Context, decisionID, kind, prompt, response string) {
	if c.sink == nil {
		return
	}
	if err := c.sink.SaveDecision(ctx, decisionID, kind, prompt, response); err != nil {
		logger.Warn("Не удалось записать решение советника", zap.Error(err))
	}
}

func entryPrompt(sig *models.Signal) string {
	p := sig.Profile
	return fmt.Sprintf(`TRADING SIGNAL ANALYSIS REQUEST

Symbol: %s
Direction: %s
Timeframe: %s

VOLUME PROFILE DATA:
- Development Score: %.1f%% (developed = %t)
- POC (Point of Control): $%.2f
- Value Area: $%.2f - $%.2f
- Entry Level: %s
- Lookback Period: %d candles

TRADE PARAMETERS:
- Entry Price: $%.2f
- Target Price: $%.2f
- Stop Loss: $%.2f
- Risk/Reward Ratio: %.2f
- Suggested Leverage: %dx
- ATR (Volatility): %.3f%%

STRATEGY REASONING:
%s
`,
		sig.Symbol, sig.Direction, sig.Timeframe,
		sig.Confidence, p.Developed, p.POC, p.ValueAreaLow, p.ValueAreaHigh,
		sig.Metadata.EntryLevel, p.Lookback,
		sig.EntryPrice, sig.TargetPrice, sig.StopLoss,
		sig.RiskReward, sig.Leverage, sig.ATRPercent,
		sig.Reasoning)
}

func exitPrompt(p *models.Position, update *models.PositionUpdate) string {
	return fmt.Sprintf(`POSITION MONITORING REQUEST

Symbol: %s
Direction: %s
Timeframe: %s

ENTRY:
- Entry Price: $%.2f
- Entry Time: %s
- Leverage: %dx

CURRENT STATUS:
- Current Price: $%.2f
- Unrealized PnL: $%.2f
- Candles Held: %d/%d

EXIT TARGETS:
- Take Profit: $%.2f
- Stop Loss: $%.2f

Should we EXIT now or HOLD this position?
`,
		p.Symbol, p.Direction, p.Timeframe,
		p.EntryPrice, p.OpenedAt.Format(time.RFC3339), p.Leverage,
		update.CurrentPrice, update.UnrealizedPnL,
		update.CandlesHeld, p.TimeoutCandles,
		p.TakeProfit, p.StopLoss)
}
