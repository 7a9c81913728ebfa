package saga

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appsaga "ordersaga/internal/app/saga"
)

func RegisterRoutes(r chi.Router, s appsaga.SagaService, l *zap.Logger) {
	handler := NewSagaHandler(s, l.With(zap.String("component", "SagaHTTPHandler")))

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", handler.PlaceOrder)
	})
	r.Route("/sagas", func(r chi.Router) {
		r.Get("/order/{orderID}", handler.GetSagaByOrderID)
	})
	r.Route("/inbox", func(r chi.Router) {
		r.Get("/{eventID}", handler.GetInboxMessage)
	})
	r.Route("/outbox", func(r chi.Router) {
		r.Get("/stats", handler.OutboxStats)
		r.Post("/{messageID}/retry", handler.RetryOutboxMessage)
	})
}
