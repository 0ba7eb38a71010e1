package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"recordkeeper-auth/internal/client"
	"recordkeeper-auth/internal/models"
	"recordkeeper-auth/internal/repository"
	"recordkeeper-auth/internal/util"
)

// Dispatcher persists audit entries off the request path. Entries flow
// through a bounded channel; when the buffer is full the entry is
// dropped with a warning rather than blocking a login. ClickHouse is
// the store of record, Kafka and Elasticsearch fan-out is best effort.
type Dispatcher struct {
	store    repository.AuditStore
	producer *client.KafkaProducer
	search   *client.ESClient

	kafkaTopic string
	esIndex    string

	queue     chan *models.AuditEntry
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type DispatcherOptions struct {
	BufferSize int
	KafkaTopic string
	ESIndex    string
	Producer   *client.KafkaProducer
	Search     *client.ESClient
}

func NewDispatcher(store repository.AuditStore, opts DispatcherOptions) *Dispatcher {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}

	d := &Dispatcher{
		store:      store,
		producer:   opts.Producer,
		search:     opts.Search,
		kafkaTopic: opts.KafkaTopic,
		esIndex:    opts.ESIndex,
		queue:      make(chan *models.AuditEntry, opts.BufferSize),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Enqueue hands an entry to the background writer. It never blocks.
func (d *Dispatcher) Enqueue(entry *models.AuditEntry) {
	select {
	case d.queue <- entry:
	default:
		util.Warn("Audit buffer full, dropping entry",
			zap.String("entry_id", entry.EntryID),
			zap.String("event", entry.Event))
	}
}

// Close stops accepting entries and drains the buffer.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for entry := range d.queue {
		d.write(entry)
	}
}

func (d *Dispatcher) write(entry *models.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.store.Insert(ctx, entry); err != nil {
		util.Error("Failed to persist audit entry",
			zap.String("entry_id", entry.EntryID),
			zap.String("event", entry.Event),
			zap.Error(err))
		// Fan-out without the entry of record would be misleading.
		return
	}

	if d.producer != nil && d.kafkaTopic != "" {
		d.publish(ctx, entry)
	}
	if d.search != nil && d.esIndex != "" {
		d.index(ctx, entry)
	}
}

func (d *Dispatcher) publish(ctx context.Context, entry *models.AuditEntry) {
	value, err := json.Marshal(entry)
	if err != nil {
		util.Warn("Failed to encode audit event", zap.Error(err))
		return
	}

	err = d.producer.ProduceMessage(ctx, d.kafkaTopic,
		[]byte(entry.PseudonymizedUserID), value,
		map[string]string{"event": entry.Event})
	if err != nil {
		util.Warn("Failed to publish audit event",
			zap.String("entry_id", entry.EntryID),
			zap.Error(err))
	}
}

func (d *Dispatcher) index(ctx context.Context, entry *models.AuditEntry) {
	res, err := d.search.IndexDocument(ctx, d.esIndex, entry.EntryID, entry)
	if err != nil {
		util.Warn("Failed to index audit entry",
			zap.String("entry_id", entry.EntryID),
			zap.Error(err))
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		util.Warn("Audit index rejected entry",
			zap.String("entry_id", entry.EntryID),
			zap.String("status", res.Status()))
	}
}
