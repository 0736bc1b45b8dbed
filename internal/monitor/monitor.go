package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/interactive-markers/internal/registry"
	"github.com/OCAP2/interactive-markers/internal/worker"
	"github.com/OCAP2/interactive-markers/pkg/streaming"
)

// SubscriberLister reports the connected clients.
type SubscriberLister interface {
	Subscribers() []string
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Registry      *registry.Registry
	Transport     SubscriberLister
	WorkerManager *worker.Manager // optional
	Namespace     string
	StatusFile    string // optional; rewritten every interval
	Logger        *slog.Logger
	Now           func() time.Time
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	started   time.Time
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		deps:     deps,
		started:  deps.Now(),
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Status returns the current server status
func (s *Service) Status() streaming.Health {
	h := streaming.Health{
		Status:    "ok",
		Namespace: s.deps.Namespace,
		Markers:   s.deps.Registry.Size(),
		Pending:   s.deps.Registry.Pending(),
		Seq:       s.deps.Registry.Seq(),
		Uptime:    s.deps.Now().Sub(s.started).Round(time.Second).String(),
	}
	if s.deps.Transport != nil {
		h.Subscribers = len(s.deps.Transport.Subscribers())
	}
	if s.deps.WorkerManager != nil {
		h.LastSnapshotMs = float32(s.deps.WorkerManager.GetLastSaveDuration().Microseconds()) / 1000
	}
	return h
}

func (s *Service) writeStatusFile() error {
	data, err := json.MarshalIndent(s.Status(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	return os.WriteFile(s.deps.StatusFile, append(data, '\n'), 0644)
}

// Start starts the status monitor goroutine
func (s *Service) Start(interval time.Duration) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "interval", interval)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if s.deps.StatusFile == "" {
					continue
				}
				if err := s.writeStatusFile(); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
		s.isRunning = false
	}
}
