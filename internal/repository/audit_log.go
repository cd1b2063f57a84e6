package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"LOBFuse/internal/domain/models"
	domrepo "LOBFuse/internal/domain/repository"
)

// JSONLAuditLog appends one JSON record per line to a file. The file is
// created empty if absent and never truncated.
type JSONLAuditLog struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
	path string
}

// NewJSONLAuditLog opens (or creates) the audit file in append mode.
func NewJSONLAuditLog(path string) (domrepo.AuditLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &JSONLAuditLog{f: f, enc: json.NewEncoder(f), path: path}, nil
}

// Append writes one event and syncs it to disk before returning, so the
// trail survives a crashing callback further down the chain.
func (l *JSONLAuditLog) Append(ev *models.ActivitySpikeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(ev); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}

func (l *JSONLAuditLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
