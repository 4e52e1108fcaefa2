package notify

import (
	"fmt"

	"github.com/hamed0406/waterwatch/internal/domain"
)

const (
	DefaultTitle = "Cortes de agua programados"

	TestTitle   = "Prueba de notificación de agua"
	TestMessage = "Si ves esto, las notificaciones de la extensión están funcionando."
)

type Text struct {
	Title   string
	Message string
	Count   int
}

// BuildText picks the title from alert and phrases the message by count,
// previewing the first interruption's window.
func BuildText(alert *domain.RawAlert, interruptions []domain.Interruption) Text {
	title := DefaultTitle
	if alert != nil && alert.Title != "" {
		title = alert.Title
	}
	t := Text{Title: title, Count: len(interruptions)}
	switch {
	case len(interruptions) == 0:
	case len(interruptions) == 1:
		first := interruptions[0]
		t.Message = fmt.Sprintf("Se ha programado un corte de agua en tu zona. Desde %s hasta %s.", first.StartTime, first.EndTime)
	default:
		first := interruptions[0]
		t.Message = fmt.Sprintf("Se han programado %d cortes de agua en tu zona. Próximo: %s - %s.", len(interruptions), first.StartTime, first.EndTime)
	}
	return t
}
