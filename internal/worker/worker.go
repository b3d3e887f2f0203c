package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dreadlabs/dread-engine/internal/engine"
	"github.com/dreadlabs/dread-engine/internal/services/events"
	"github.com/dreadlabs/dread-engine/internal/services/queue"
)

const (
	workerTimeout = 5 * time.Second
	lockTTL       = 30 * time.Second
)

// Worker consumes turn requests from the global queue and runs them through
// the orchestrator, one session at a time. A Redis SetNX lock per session
// keeps multiple workers from processing the same session concurrently; the
// store's in-process lock covers goroutines inside one worker.
type Worker struct {
	id           string
	queue        *queue.ActionQueue
	orchestrator *engine.Orchestrator
	broadcaster  *events.Broadcaster
	redisClient  *redis.Client
	log          *slog.Logger
	ctx          context.Context
	cancel       context.CancelFunc
}

// New creates a new worker instance
func New(actionQueue *queue.ActionQueue, orchestrator *engine.Orchestrator, redisClient *redis.Client, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	return &Worker{
		id:           workerID,
		queue:        actionQueue,
		orchestrator: orchestrator,
		broadcaster:  events.NewBroadcaster(redisClient, log),
		redisClient:  redisClient,
		log:          log,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins processing requests from the queue
func (w *Worker) Start() error {
	w.log.Info("Worker starting", "worker_id", w.id)

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down", "worker_id", w.id)
			return nil
		default:
			if err := w.processNextRequest(); err != nil {
				w.log.Error("Error processing request", "error", err, "worker_id", w.id)
				// Continue processing even on error
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested", "worker_id", w.id)
	w.cancel()
}

// processNextRequest pulls the next request from the queue and processes it
func (w *Worker) processNextRequest() error {
	// Block waiting for the next request, with a timeout so shutdown is
	// noticed promptly.
	ctx, cancel := context.WithTimeout(w.ctx, workerTimeout)
	defer cancel()

	req, err := w.queue.BlockingDequeue(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Timeout or shutdown, not a queue failure.
			return nil
		}
		return fmt.Errorf("failed to dequeue request: %w", err)
	}
	if req == nil {
		return nil
	}

	w.log.Info("Received turn request",
		"worker_id", w.id,
		"request_id", req.RequestID,
		"session_id", req.SessionID.String(),
	)

	locked, err := w.acquireSessionLock(req.SessionID)
	if err != nil {
		return fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !locked {
		// Another worker holds this session; re-queue at the end and
		// move on.
		w.log.Info("Session already locked, re-queueing request",
			"worker_id", w.id,
			"request_id", req.RequestID,
			"session_id", req.SessionID.String(),
		)
		if err := w.queue.Enqueue(w.ctx, req); err != nil {
			return fmt.Errorf("failed to re-queue request: %w", err)
		}
		return nil
	}

	defer w.releaseSessionLock(req.SessionID)
	return w.processRequest(req)
}

// acquireSessionLock attempts to acquire the cross-process lock for a
// session. Returns true if the lock was acquired.
func (w *Worker) acquireSessionLock(sessionID uuid.UUID) (bool, error) {
	lockKey := fmt.Sprintf("session-lock:%s", sessionID.String())

	result, err := w.redisClient.SetNX(w.ctx, lockKey, w.id, lockTTL).Result()
	if err != nil {
		return false, err
	}
	return result, nil
}

// releaseSessionLock releases the session lock, but only if this worker
// still owns it.
func (w *Worker) releaseSessionLock(sessionID uuid.UUID) {
	lockKey := fmt.Sprintf("session-lock:%s", sessionID.String())

	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	if err := script.Run(w.ctx, w.redisClient, []string{lockKey}, w.id).Err(); err != nil {
		w.log.Error("Failed to release session lock", "error", err, "session_id", sessionID.String())
	}
}

// processRequest runs one turn through the orchestrator, publishing
// lifecycle events around it. A panic inside the pipeline is contained and
// reported as a failed turn rather than killing the worker.
func (w *Worker) processRequest(req *queue.Request) (err error) {
	start := time.Now()

	if pubErr := w.broadcaster.PublishTurnProcessing(w.ctx, req.SessionID, req.RequestID); pubErr != nil {
		w.log.Error("Failed to publish processing event", "error", pubErr)
		// Don't fail the turn just because event publishing failed
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("turn processing panicked: %v", r)
			w.log.Error("Turn processing panicked",
				"worker_id", w.id,
				"request_id", req.RequestID,
				"session_id", req.SessionID.String(),
				"panic", r,
			)
			w.publishFailed(req, err)
		}
	}()

	if err := w.orchestrator.ProcessTurn(w.ctx, req.SessionID, req.Action); err != nil {
		w.log.Error("Turn processing failed",
			"error", err,
			"worker_id", w.id,
			"request_id", req.RequestID,
			"session_id", req.SessionID.String(),
		)
		w.publishFailed(req, err)
		return fmt.Errorf("failed to process turn: %w", err)
	}

	w.log.Info("Turn processed",
		"worker_id", w.id,
		"request_id", req.RequestID,
		"session_id", req.SessionID.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if pubErr := w.broadcaster.PublishTurnCompleted(w.ctx, req.SessionID, req.RequestID,
		w.orchestrator.LastFeedID(w.ctx, req.SessionID)); pubErr != nil {
		w.log.Error("Failed to publish completion event", "error", pubErr)
	}
	return nil
}

func (w *Worker) publishFailed(req *queue.Request, cause error) {
	if pubErr := w.broadcaster.PublishTurnFailed(w.ctx, req.SessionID, req.RequestID, cause.Error()); pubErr != nil {
		w.log.Error("Failed to publish failure event", "error", pubErr)
	}
}
