package app

import (
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

// createOrchestrator создаёт checkout orchestrator с или без Kafka в
// зависимости от наличия kafka producer.
func createOrchestrator(
	deps *Dependencies,
	initiator checkout.SessionInitiator,
	recorder checkout.OrderRecorder,
	kafkaProducer *kafka.Producer,
) checkout.Orchestrator {
	if kafkaProducer != nil {
		return checkout.NewOrchestratorWithKafka(
			deps.Carts,
			initiator,
			recorder,
			deps.Callbacks,
			deps.Outbox,
			deps.Timeline,
			kafkaProducer,
			deps.Logger,
		)
	}

	return checkout.NewOrchestrator(
		deps.Carts,
		initiator,
		recorder,
		deps.Callbacks,
		deps.Outbox,
		deps.Timeline,
		deps.Logger,
	)
}
