package worker

import (
	"log/slog"
	"sync"
	"time"
)

// Worker is a background loop. Start returns once the loop is running; Stop
// blocks until it has exited.
type Worker interface {
	Name() string
	Start()
	Stop()
}

type Scheduler struct {
	workers     []Worker
	stopTimeout time.Duration
	logger      *slog.Logger
	stopped     bool
	mu          sync.RWMutex
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		workers:     make([]Worker, 0),
		stopTimeout: 10 * time.Second,
		logger:      logger,
	}
}

func (s *Scheduler) AddWorker(worker Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker)
}

// Names lists the registered workers.
func (s *Scheduler) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.workers))
	for _, w := range s.workers {
		names = append(names, w.Name())
	}
	return names
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	s.logger.Info("starting scheduler", "workers", len(s.workers))
	for _, w := range s.workers {
		w.Start()
	}
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	workers := s.workers
	s.mu.Unlock()

	s.logger.Info("stopping scheduler")

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			w.Stop()
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped gracefully")
	case <-time.After(s.stopTimeout):
		s.logger.Warn("scheduler stop timeout", "timeout", s.stopTimeout)
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.stopped
}

// loop is the start/stop plumbing shared by the workers.
type loop struct {
	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func (l *loop) start(run func(stop <-chan struct{})) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return false
	}
	l.running = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go func(stop, done chan struct{}) {
		defer close(done)
		run(stop)
	}(l.stop, l.done)
	return true
}

func (l *loop) halt() bool {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return false
	}
	l.running = false
	close(l.stop)
	done := l.done
	l.mu.Unlock()

	<-done
	return true
}
