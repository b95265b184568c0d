package worker

import (
	"context"

	"github.com/Shahid199578/whatsapp-delivery-worker/internal/kafka/consumer"
)

// KafkaHandler returns a consumer.Handler that converts Kafka consumer
// records into engine records and delegates processing to the engine. Offset
// commits flow back through the supplied consumer.
func KafkaHandler(engine *Engine, cons *consumer.Consumer) consumer.Handler {
	return func(ctx context.Context, rec *consumer.Record) error {
		if engine == nil || rec == nil {
			return nil
		}
		record := &Record{
			Topic:     rec.Topic,
			Partition: rec.Partition,
			Offset:    rec.Offset,
			Key:       cloneBytes(rec.Key),
			Value:     cloneBytes(rec.Value),
			Timestamp: rec.Timestamp,
		}
		if cons != nil {
			record.BindCommit(func(c context.Context) error {
				return cons.Commit(c, rec)
			})
		}
		engine.HandleRecord(ctx, record)
		return nil
	}
}
