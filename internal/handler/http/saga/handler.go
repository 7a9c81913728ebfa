package saga

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appsaga "ordersaga/internal/app/saga"
	"ordersaga/internal/domain"
)

type SagaHandler struct {
	service appsaga.SagaService
	logger  *zap.Logger
}

func NewSagaHandler(s appsaga.SagaService, l *zap.Logger) *SagaHandler {
	return &SagaHandler{service: s, logger: l}
}

func (h *SagaHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req appsaga.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for PlaceOrder", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.service.PlaceOrder(r.Context(), &req)
	if err != nil {
		h.logger.Error("Error placing order", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(res)
}

func (h *SagaHandler) GetSagaByOrderID(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		http.Error(w, "Order ID is required", http.StatusBadRequest)
		return
	}

	res, err := h.service.GetSagaByOrderID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, domain.ErrSagaNotFound) {
			h.logger.Info("Saga not found", zap.String("order_id", orderID))
			http.Error(w, "Saga not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Error getting saga", zap.String("order_id", orderID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func (h *SagaHandler) GetInboxMessage(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		http.Error(w, "Event ID is required", http.StatusBadRequest)
		return
	}

	res, err := h.service.GetInboxMessage(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, domain.ErrInboxMessageNotFound) {
			http.Error(w, "Inbox message not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Error getting inbox message", zap.String("event_id", eventID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func (h *SagaHandler) OutboxStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.OutboxStats(r.Context())
	if err != nil {
		h.logger.Error("Error getting outbox stats", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (h *SagaHandler) RetryOutboxMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")
	if messageID == "" {
		http.Error(w, "Message ID is required", http.StatusBadRequest)
		return
	}

	if err := h.service.RetryOutboxMessage(r.Context(), messageID); err != nil {
		if errors.Is(err, domain.ErrOutboxMessageNotFound) {
			http.Error(w, "No failed outbox message with that ID", http.StatusNotFound)
			return
		}
		h.logger.Error("Error retrying outbox message", zap.String("message_id", messageID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
