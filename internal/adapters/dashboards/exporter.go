package dashboards

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"crossfilter/internal/blob"
	"crossfilter/internal/core"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportArtifact describes one stored rendering of a chart.
type ExportArtifact struct {
	Key         string            `json:"key"`
	Format      ExportFormat      `json:"format"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	ETag        string            `json:"etag,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ExportRecord tracks an export request and resulting artifacts.
type ExportRecord struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	ComponentID string            `json:"component_id"`
	Chart       string            `json:"chart"`
	Filter      *core.FilterRange `json:"filter,omitempty"`
	Formats     []ExportFormat    `json:"formats"`
	Status      ExportStatus      `json:"status"`
	Error       string            `json:"error,omitempty"`
	Artifacts   []ExportArtifact  `json:"artifacts,omitempty"`
	RequestedBy string            `json:"requested_by,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// ExportInput represents an enqueue request for the worker.
type ExportInput struct {
	SessionID   string
	ComponentID string
	Formats     []ExportFormat
	RequestedBy string
	Reason      string
}

// ExportScheduler queues chart export requests and exposes status.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
}

// SessionLookup resolves live sessions.
type SessionLookup interface {
	Session(id string) (*core.Session, error)
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for exports.
type AuditEntry struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	Actor      string            `json:"actor"`
	SessionID  string            `json:"session_id"`
	Component  string            `json:"component"`
	Status     ExportStatus      `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Worker renders chart exports asynchronously and stores them in a blob store.
// The filter is captured when the export is enqueued, so later interactions
// in the session do not change what is exported.
type Worker struct {
	sessions SessionLookup
	store    blob.Store
	audit    AuditLogger
	logger   core.Logger

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id        string
	dashboard *core.Dashboard
}

// NewWorker constructs an export worker. store and audit may be nil.
func NewWorker(sessions SessionLookup, store blob.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		sessions: sessions,
		store:    store,
		audit:    audit,
		logger:   core.NewSlogLogger(nil),
		queue:    make(chan exportTask, 32),
		jobs:     make(map[string]*ExportRecord),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// WithLogger replaces the worker logger.
func (w *Worker) WithLogger(logger core.Logger) *Worker {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport schedules an export of a session component and returns the
// queued record.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if w.sessions == nil {
		return ExportRecord{}, fmt.Errorf("export sessions not configured")
	}
	if strings.TrimSpace(input.ComponentID) == "" {
		return ExportRecord{}, fmt.Errorf("component id required")
	}
	session, err := w.sessions.Session(input.SessionID)
	if err != nil {
		return ExportRecord{}, err
	}
	dashboard := session.Dashboard()
	component, ok := dashboard.Component(input.ComponentID)
	if !ok {
		return ExportRecord{}, core.ErrNotFound{Entity: core.EntityComponent, ID: input.ComponentID}
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []ExportFormat{FormatJSON, FormatCSV}
	}
	uniqFormats := make([]ExportFormat, 0, len(formats))
	seen := make(map[ExportFormat]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		if _, err := ParseFormat(string(format)); err != nil {
			return ExportRecord{}, err
		}
		uniqFormats = append(uniqFormats, format)
		seen[format] = struct{}{}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	record := ExportRecord{
		ID:          id,
		SessionID:   input.SessionID,
		ComponentID: component.ID,
		Chart:       component.Chart,
		Filter:      session.FilterFor(component.ID),
		Formats:     uniqFormats,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queuedSnapshot := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- exportTask{id: id, dashboard: dashboard}:
	default:
		w.mu.Lock()
		delete(w.jobs, id)
		w.mu.Unlock()
		return ExportRecord{}, fmt.Errorf("export queue full")
	}

	w.record(ctx, id, ExportStatusQueued, nil)
	return queuedSnapshot, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(task exportTask) {
	record, ok := w.GetExport(task.id)
	if !ok {
		return
	}
	w.updateStatus(task.id, ExportStatusRunning)

	artifact, err := task.dashboard.RenderComponent(w.ctx, record.ComponentID, record.Filter)
	if err != nil {
		w.fail(task.id, fmt.Sprintf("render failed: %v", err))
		return
	}

	artifacts := make([]ExportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		payload, err := materialize(format, artifact)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		exported := ExportArtifact{
			Key:         fmt.Sprintf("exports/%s/%s.%s", record.ID, record.ComponentID, format),
			Format:      format,
			ContentType: format.ContentType(),
			SizeBytes:   int64(len(payload)),
			Metadata:    exportMetadata(record),
			CreatedAt:   time.Now().UTC(),
		}
		if w.store != nil {
			info, err := w.store.Put(w.ctx, exported.Key, bytes.NewReader(payload), blob.PutOptions{
				ContentType: exported.ContentType,
				Metadata:    exported.Metadata,
			})
			if err != nil {
				w.fail(task.id, fmt.Sprintf("store artifact failed: %v", err))
				return
			}
			exported.ETag = info.ETag
			if info.Size > 0 {
				exported.SizeBytes = info.Size
			}
		}
		artifacts = append(artifacts, exported)
	}
	w.complete(task.id, artifacts)
}

func materialize(format ExportFormat, artifact core.ChartArtifact) ([]byte, error) {
	switch format {
	case FormatJSON:
		payload, err := json.Marshal(artifact)
		if err != nil {
			return nil, fmt.Errorf("marshal json: %w", err)
		}
		return payload, nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		if err := writeArtifactCSV(buf, artifact); err != nil {
			return nil, fmt.Errorf("write csv: %w", err)
		}
		return buf.Bytes(), nil
	case FormatHTML:
		return buildHTML(artifact), nil
	default:
		return nil, fmt.Errorf("unsupported export format %s", format)
	}
}

func exportMetadata(record ExportRecord) map[string]string {
	meta := map[string]string{
		"session":   record.SessionID,
		"component": record.ComponentID,
		"chart":     record.Chart,
	}
	if record.Filter != nil {
		meta["filter"] = record.Filter.String()
	}
	return meta
}

func (w *Worker) updateStatus(id string, status ExportStatus) {
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = ""
		record.UpdatedAt = time.Now().UTC()
	}
	w.mu.Unlock()
	w.record(w.ctx, id, status, nil)
}

func (w *Worker) complete(id string, artifacts []ExportArtifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.record(w.ctx, id, ExportStatusSucceeded, nil)
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.logger.Warn("chart export failed", "export", id, "error", reason)
	w.record(w.ctx, id, ExportStatusFailed, map[string]string{"error": reason})
}

func (w *Worker) record(ctx context.Context, id string, status ExportStatus, metadata map[string]string) {
	if w.audit == nil {
		return
	}
	record, ok := w.GetExport(id)
	if !ok {
		return
	}
	w.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		Action:     "chart_export",
		Actor:      record.RequestedBy,
		SessionID:  record.SessionID,
		Component:  record.ComponentID,
		Status:     status,
		Reason:     record.Reason,
		Metadata:   metadata,
		OccurredAt: time.Now().UTC(),
	})
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	if r.Filter != nil {
		dup.Filter = r.Filter.Ptr()
	}
	dup.Formats = append([]ExportFormat(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]ExportArtifact(nil), r.Artifacts...)
	}
	return dup
}

// MemoryAuditLog captures audit entries in-memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
