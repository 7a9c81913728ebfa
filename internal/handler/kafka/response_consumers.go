package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	appsaga "ordersaga/internal/app/saga"
	"ordersaga/internal/domain"
	kafka_infra "ordersaga/internal/infrastructure/kafka"
)

// responseHandler adapts one orchestrator handler to a Kafka message
// handler. A message that cannot even be decoded into an envelope is
// dropped (acked) — redelivering it can never succeed. A processing error
// propagates so the offset is not committed and the broker redelivers.
func responseHandler(
	name string,
	logger *zap.Logger,
	handle func(ctx context.Context, env *domain.Envelope) error,
) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var env domain.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			logger.Error("Failed to unmarshal event envelope, dropping message",
				zap.String("handler", name),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.ByteString("value", msg.Value),
				zap.Error(err))
			return nil
		}
		if env.EventID == "" || env.OrderID == "" {
			logger.Error("Event envelope missing event_id or order_id, dropping message",
				zap.String("handler", name),
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset))
			return nil
		}

		logger.Info("Received response event",
			zap.String("handler", name),
			zap.String("event_id", env.EventID),
			zap.String("order_id", env.OrderID),
			zap.String("type", string(env.Type)))

		if err := handle(ctx, &env); err != nil {
			logger.Error("Failed to process response event",
				zap.String("handler", name),
				zap.String("event_id", env.EventID),
				zap.String("order_id", env.OrderID),
				zap.Error(err))
			return fmt.Errorf("failed to process %s event %s: %w", name, env.EventID, err)
		}
		return nil
	}
}

func PricingResponseHandler(service appsaga.SagaService, logger *zap.Logger) kafka_infra.MessageHandler {
	return responseHandler("pricing", logger, service.HandlePricingResponse)
}

func InventoryResponseHandler(service appsaga.SagaService, logger *zap.Logger) kafka_infra.MessageHandler {
	return responseHandler("inventory", logger, service.HandleInventoryResponse)
}

func CardValidationResponseHandler(service appsaga.SagaService, logger *zap.Logger) kafka_infra.MessageHandler {
	return responseHandler("card_validation", logger, service.HandleCardValidationResponse)
}

func PaymentResponseHandler(service appsaga.SagaService, logger *zap.Logger) kafka_infra.MessageHandler {
	return responseHandler("payment", logger, service.HandlePaymentResponse)
}

func DeliveryResponseHandler(service appsaga.SagaService, logger *zap.Logger) kafka_infra.MessageHandler {
	return responseHandler("delivery", logger, service.HandleDeliveryResponse)
}
