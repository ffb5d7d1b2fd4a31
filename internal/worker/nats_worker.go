package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"voeventdb/internal/service"

	"github.com/nats-io/nats.go"
)

type NATSConfig struct {
	URL     string
	Subject string
	Queue   string
}

// NATSWorker safely inserts raw packets published on a subject. Instances
// share a queue group, so each packet is handled once. Requests carrying a
// reply subject get a JSON status back.
type NATSWorker struct {
	ingest  service.IngestService
	cfg     NATSConfig
	timeout time.Duration
	logger  *slog.Logger
	loop    loop
}

func NewNATSWorker(ingest service.IngestService, cfg NATSConfig, logger *slog.Logger) *NATSWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSWorker{
		ingest:  ingest,
		cfg:     cfg,
		timeout: 30 * time.Second,
		logger:  logger.With("worker", "nats", "subject", cfg.Subject),
	}
}

func (w *NATSWorker) Name() string { return "nats" }

func (w *NATSWorker) Start() {
	if w.loop.start(w.run) {
		w.logger.Info("nats worker started", "url", w.cfg.URL, "queue", w.cfg.Queue)
	}
}

func (w *NATSWorker) Stop() {
	if w.loop.halt() {
		w.logger.Info("nats worker stopped")
	}
}

func (w *NATSWorker) run(stop <-chan struct{}) {
	nc, err := nats.Connect(w.cfg.URL,
		nats.Name("voeventdb"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				w.logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			w.logger.Info("nats reconnected", "server", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		w.logger.Error("nats connect failed", "error", err)
		return
	}
	defer nc.Close()

	sub, err := nc.QueueSubscribe(w.cfg.Subject, w.cfg.Queue, w.handle)
	if err != nil {
		w.logger.Error("nats subscribe failed", "error", err)
		return
	}

	<-stop
	if err := sub.Drain(); err != nil {
		w.logger.Warn("nats drain failed", "error", err)
		return
	}
	// Drain is asynchronous; wait for in-flight handlers.
	deadline := time.Now().Add(w.timeout)
	for sub.IsValid() && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
}

func (w *NATSWorker) handle(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	res, err := w.ingest.InsertPacket(ctx, msg.Data, "nats")
	if res.Outcome == service.OutcomeError {
		w.logger.Error("packet not stored", "ivorn", res.Ivorn, "error", err)
	}
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(replyFor(res, err)); err != nil {
		w.logger.Warn("nats reply failed", "error", err)
	}
}

// Reply is the status sent back to requesters.
type Reply struct {
	Ivorn   string `json:"ivorn,omitempty"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

func replyFor(res *service.InsertResult, err error) []byte {
	r := Reply{Ivorn: res.Ivorn, Outcome: res.Outcome}
	if err != nil && res.Outcome != service.OutcomeError {
		r.Error = err.Error()
	}
	out, _ := json.Marshal(r)
	return out
}
