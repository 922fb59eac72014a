package cartsync

import (
	"sort"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Intent — последнее выданное, но ещё не подтверждённое намерение по одной
// позиции корзины. Seq монотонно растёт в рамках сессии клиента; ответ
// магазина на более старый интент по той же позиции отбрасывается.
type Intent struct {
	Seq      uint64
	Quantity int32
	IssuedAt time.Time
}

// Reconcile накладывает невыполненные намерения клиента на авторитетную
// корзину магазина. Чистая функция: правило "побеждает последний выданный
// интент" проверяется отдельно от сетевых таймингов.
//
// Позиции без висящего интента берутся из confirmed как есть. Позиция с
// интентом quantity == 0 исключается из зеркала; с положительным количеством —
// показывается с желаемым количеством (снапшот имени/цены из confirmed, если
// магазин эту позицию уже знает, иначе плейсхолдер до подтверждения).
func Reconcile(confirmed domain.Cart, pending map[string]Intent) domain.Cart {
	mirror := domain.Cart{
		OwnerRef:  confirmed.OwnerRef,
		UpdatedAt: confirmed.UpdatedAt,
	}

	for _, line := range confirmed.Lines {
		intent, ok := pending[line.ProductRef]
		if !ok {
			mirror.Lines = append(mirror.Lines, line)
			continue
		}
		if intent.Quantity == 0 {
			continue
		}
		overlaid := line
		overlaid.Quantity = intent.Quantity
		mirror.Lines = append(mirror.Lines, overlaid)
	}

	// Интенты по позициям, которых магазин ещё не знает.
	for ref, intent := range pending {
		if intent.Quantity == 0 {
			continue
		}
		if _, known := confirmed.Line(ref); known {
			continue
		}
		mirror.Lines = append(mirror.Lines, domain.CartLine{
			ProductRef: ref,
			Quantity:   intent.Quantity,
			AddedAt:    intent.IssuedAt,
		})
	}

	sort.Slice(mirror.Lines, func(i, j int) bool {
		return mirror.Lines[i].ProductRef < mirror.Lines[j].ProductRef
	})

	return mirror
}
