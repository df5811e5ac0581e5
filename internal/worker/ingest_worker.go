package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"docuchat/internal/model"
)

// Processor runs the ingestion pipeline for one pending document.
type Processor interface {
	ProcessDocument(ctx context.Context, documentID string) error
}

// IngestWorker consumes ingestion jobs and processes documents concurrently.
// A per-document failure nacks without requeue: the document row already
// carries the failure reason, and retrying a corrupt upload cannot succeed.
type IngestWorker struct {
	conn      *amqp.Connection
	processor Processor
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, processor Processor, queueName string) *IngestWorker {
	return &IngestWorker{
		conn:      conn,
		processor: processor,
		queueName: queueName,
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				// Documents are independent, so each one gets its own
				// goroutine; ordering within a document is preserved
				// because a document is only ever one job.
				w.wg.Add(1)
				go func(d amqp.Delivery) {
					defer w.wg.Done()
					w.handle(workerCtx, d)
				}(d)
			}
		}
	}()

	return nil
}

func (w *IngestWorker) handle(ctx context.Context, d amqp.Delivery) {
	var job model.IngestJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("worker decode ingest job failed: %v", err)
		_ = d.Nack(false, false)
		return
	}

	if err := w.processor.ProcessDocument(ctx, job.DocumentID); err != nil {
		log.Printf("worker process document %s failed: %v", job.DocumentID, err)
		_ = d.Nack(false, false)
		return
	}

	_ = d.Ack(false)
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
