package adaptive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PromotionJournal is the append-only JSONL log of promotion decisions. It
// lives on the local filesystem, deliberately outside the execution-side
// store: a journal outage must never block order-side operations.
type PromotionJournal struct {
	mu   sync.Mutex
	path string
}

// NewPromotionJournal creates a journal at the given path, creating parent
// directories as needed
func NewPromotionJournal(path string) (*PromotionJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	return &PromotionJournal{path: path}, nil
}

// Append writes one decision as a single JSON line. The write is synced
// before returning so a decision is durable before its caller acts on it.
func (j *PromotionJournal) Append(decision PromotionDecision) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	line, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("failed to marshal promotion decision: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open promotion journal: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append promotion decision: %w", err)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync promotion journal: %w", err)
	}

	return nil
}

// Recent returns up to limit of the most recent decisions, newest last.
// A limit of zero or less returns all decisions.
func (j *PromotionJournal) Recent(limit int) ([]PromotionDecision, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open promotion journal: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var decisions []PromotionDecision
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var decision PromotionDecision
		if err := json.Unmarshal(line, &decision); err != nil {
			return nil, fmt.Errorf("failed to parse promotion journal line: %w", err)
		}
		decisions = append(decisions, decision)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read promotion journal: %w", err)
	}

	if limit > 0 && len(decisions) > limit {
		decisions = decisions[len(decisions)-limit:]
	}

	return decisions, nil
}
