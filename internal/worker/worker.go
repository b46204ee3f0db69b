// Package worker provides a NATS worker that runs outreach batches on request.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-outreach/internal/app"
	"github.com/book-expert/voice-outreach/internal/core"
	"github.com/book-expert/voice-outreach/internal/leads"
	"github.com/book-expert/voice-outreach/internal/pipeline"
)

const handleMessageTimeout = 15 * time.Minute

var (
	// ErrSubjectEmpty indicates that the request subject is empty.
	ErrSubjectEmpty = errors.New("subject cannot be empty")
	// ErrStoreRequired indicates that no object store was provided.
	ErrStoreRequired = errors.New("object store is required")
	// ErrFactoryRequired indicates that no session factory was provided.
	ErrFactoryRequired = errors.New("session factory is required")
	// ErrLeadsKeyEmpty indicates a request without a lead table key.
	ErrLeadsKeyEmpty = errors.New("leads_key cannot be empty")
)

// BatchRequestedEvent asks the worker to run one batch over the lead table
// stored under LeadsKey. Empty composer fields keep the service configuration.
type BatchRequestedEvent struct {
	Header     events.EventHeader `json:"header"`
	LeadsKey   string             `json:"leads_key"`
	Mode       string             `json:"mode,omitempty"`
	Template   string             `json:"template,omitempty"`
	SenderName string             `json:"sender_name,omitempty"`
	Publish    bool               `json:"publish,omitempty"`
}

// BatchCompletedEvent is the reply to a BatchRequestedEvent.
type BatchCompletedEvent struct {
	Header     events.EventHeader `json:"header"`
	ArchiveKey string             `json:"archive_key,omitempty"`
	Rows       int                `json:"rows"`
	Accepted   int                `json:"accepted"`
	Warnings   []pipeline.Warning `json:"warnings,omitempty"`
	Links      []pipeline.Link    `json:"links,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Runner runs one batch.
type Runner interface {
	Run(ctx context.Context, records []leads.Record, publish bool) (pipeline.Result, error)
}

// SessionFactory builds a fresh Runner for each request.
type SessionFactory func(ctx context.Context, overrides app.Overrides, publish bool) (Runner, error)

// NatsWorker listens for batch requests on a NATS subject and processes them
// one at a time.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	chunkSubject   string
	store          core.ObjectStore
	newSession     SessionFactory
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. An empty
// chunkSubject disables the per-artifact notifications.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	chunkSubject string,
	store core.ObjectStore,
	newSession SessionFactory,
	log *logger.Logger,
) (*NatsWorker, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	if store == nil {
		return nil, ErrStoreRequired
	}

	if newSession == nil {
		return nil, ErrFactoryRequired
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		chunkSubject:   chunkSubject,
		store:          store,
		newSession:     newSession,
		log:            log,
	}, nil
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.System("Listening for batch requests on subject: %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)
		w.reply(msg, &BatchCompletedEvent{Error: err.Error()})

		return
	}

	reply, processErr := w.processBatch(ctx, event)
	if processErr != nil {
		w.log.Error("Failed to process batch for workflow %s: %v", event.Header.WorkflowID, processErr)

		reply.Error = processErr.Error()
	}

	w.reply(msg, reply)
}

// processBatch downloads the lead table, runs the session, and stores its
// output. The returned event is never nil.
func (w *NatsWorker) processBatch(ctx context.Context, event *BatchRequestedEvent) (*BatchCompletedEvent, error) {
	reply := &BatchCompletedEvent{Header: event.Header}

	csvData, err := w.store.Download(ctx, event.LeadsKey)
	if err != nil {
		return reply, fmt.Errorf("failed to download lead table for key '%s': %w", event.LeadsKey, err)
	}

	records, err := leads.Load(bytes.NewReader(csvData))
	if err != nil {
		return reply, fmt.Errorf("failed to parse lead table '%s': %w", event.LeadsKey, err)
	}

	session, err := w.newSession(ctx, app.Overrides{
		Mode:       event.Mode,
		Template:   event.Template,
		SenderName: event.SenderName,
	}, event.Publish)
	if err != nil {
		return reply, fmt.Errorf("failed to create session: %w", err)
	}

	result, err := session.Run(ctx, records, event.Publish)

	reply.Rows = result.Rows
	reply.Accepted = len(result.Artifacts)
	reply.Warnings = result.Warnings
	reply.Links = result.Links

	if err != nil {
		return reply, fmt.Errorf("failed to run batch: %w", err)
	}

	batchID := uuid.NewString()

	for _, artifact := range result.Artifacts {
		audioKey := batchID + "/" + artifact.FileName

		uploadErr := w.store.Upload(ctx, audioKey, artifact.Data)
		if uploadErr != nil {
			return reply, fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, uploadErr)
		}

		w.notifyChunk(event.Header, audioKey, artifact.Index, result.Rows)
	}

	archiveKey := batchID + ".zip"

	err = w.store.Upload(ctx, archiveKey, result.Archive)
	if err != nil {
		return reply, fmt.Errorf("failed to upload archive for key '%s': %w", archiveKey, err)
	}

	reply.ArchiveKey = archiveKey

	w.log.Info(
		"Batch %s finished: %d of %d rows accepted, %d warnings.",
		event.Header.WorkflowID, reply.Accepted, reply.Rows, len(reply.Warnings),
	)

	return reply, nil
}

// notifyChunk announces one stored voice note. Failures are logged only.
func (w *NatsWorker) notifyChunk(header events.EventHeader, audioKey string, row, rows int) {
	if w.chunkSubject == "" {
		return
	}

	header.EventID = uuid.NewString()
	header.Timestamp = time.Now()

	data, err := json.Marshal(&events.AudioChunkCreatedEvent{
		Header:     header,
		AudioKey:   audioKey,
		PageNumber: row,
		TotalPages: rows,
	})
	if err != nil {
		w.log.Error("Failed to marshal audio chunk event for '%s': %v", audioKey, err)

		return
	}

	err = w.natsConnection.Publish(w.chunkSubject, data)
	if err != nil {
		w.log.Error("Failed to publish audio chunk event for '%s': %v", audioKey, err)
	}
}

func (w *NatsWorker) reply(msg *nats.Msg, reply *BatchCompletedEvent) {
	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("Failed to marshal reply event: %v", err)

		return
	}

	err = msg.Respond(data)
	if err != nil {
		w.log.Error("Failed to send reply for workflow %s: %v", reply.Header.WorkflowID, err)
	}
}

func parseAndValidateEvent(msg *nats.Msg) (*BatchRequestedEvent, error) {
	var event BatchRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch request: %w", err)
	}

	if event.LeadsKey == "" {
		return nil, ErrLeadsKeyEmpty
	}

	if event.Header.WorkflowID == "" {
		event.Header.WorkflowID = uuid.NewString()
	}

	return &event, nil
}
