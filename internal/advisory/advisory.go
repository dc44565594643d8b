// Package advisory изолирует AI-советника за структурированным контрактом.
// Ядро видит только {approved, adjustments} и {should_exit} — весь разбор
// текстовых ответов модели остается внутри адаптера.
package advisory

import (
	"context"

	"github.com/skalibog/vpscalp/pkg/models"
)

// Service контракт советника. Недоступность сервиса возвращается ошибкой,
// а не решением: безопасный выбор (отклонить вход, удержать выход)
// делает вызывающая сторона.
type Service interface {
	ConfirmEntry(ctx context.Context, sig *models.Signal) (*models.EntryDecision, error)
	ConfirmExit(ctx context.Context, p *models.Position, update *models.PositionUpdate) (*models.ExitDecision, error)
}
