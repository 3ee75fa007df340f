package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pharmaflow/pharmacy-assistant/pkg/logging"
)

// TurnProcessor handles one dialogue turn. Engine is the production
// implementation.
type TurnProcessor interface {
	HandleTurn(ctx context.Context, req TurnRequest) TurnResponse
}

// Dispatcher exposes the queue-backed entrypoint used by HTTP handlers.
type Dispatcher interface {
	ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error)
	Shutdown(ctx context.Context) error
}

// ErrDispatcherClosed indicates the dispatcher is no longer accepting work.
var ErrDispatcherClosed = errors.New("chat: dispatcher closed")

// QueueDispatcher routes turns through a queue before invoking the engine.
// This lets the system point at LocalStack SQS during development and swap
// to AWS SQS in production without touching the HTTP handlers.
type QueueDispatcher struct {
	processor TurnProcessor
	queue     queueClient
	jobs      JobUpdater
	recorder  JobRecorder
	logger    *logging.Logger

	cfg dispatcherConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pending sync.Map // jobID -> chan dispatchResult
}

var _ Dispatcher = (*QueueDispatcher)(nil)

const (
	defaultWorkers          = 2
	defaultReceiveWait      = 2  // seconds
	defaultReceiveMax       = 5  // messages
	maxReceiveWaitSeconds   = 20 // SQS limit
	maxReceiveBatchMessages = 10
)

type dispatcherConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// DispatcherOption configures the dispatcher.
type DispatcherOption func(*QueueDispatcher)

// WithWorkerCount overrides the number of queue polling goroutines.
func WithWorkerCount(workers int) DispatcherOption {
	return func(d *QueueDispatcher) {
		if workers > 0 {
			d.cfg.workers = workers
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait time for ReceiveMessage calls.
func WithReceiveWaitSeconds(seconds int) DispatcherOption {
	return func(d *QueueDispatcher) {
		if seconds < 0 {
			return
		}
		if seconds > maxReceiveWaitSeconds {
			seconds = maxReceiveWaitSeconds
		}
		d.cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize overrides how many messages each poll should return.
func WithReceiveBatchSize(size int) DispatcherOption {
	return func(d *QueueDispatcher) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchMessages {
			size = maxReceiveBatchMessages
		}
		d.cfg.receiveBatchSize = size
	}
}

// WithJobStore enables durable job tracking for every dispatched turn.
func WithJobStore(recorder JobRecorder, updater JobUpdater) DispatcherOption {
	return func(d *QueueDispatcher) {
		d.recorder = recorder
		d.jobs = updater
	}
}

// NewQueueDispatcher wires a queue-backed dispatcher around the engine and
// starts its worker goroutines.
func NewQueueDispatcher(processor TurnProcessor, queue queueClient, logger *logging.Logger, opts ...DispatcherOption) *QueueDispatcher {
	if processor == nil {
		panic("chat: processor cannot be nil")
	}
	if queue == nil {
		panic("chat: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &QueueDispatcher{
		processor: processor,
		queue:     queue,
		logger:    logger,
		cfg: dispatcherConfig{
			workers:          defaultWorkers,
			receiveWaitSecs:  defaultReceiveWait,
			receiveBatchSize: defaultReceiveMax,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(d)
	}

	for i := 0; i < d.cfg.workers; i++ {
		d.wg.Add(1)
		go d.runWorker(i + 1)
	}

	return d
}

// ProcessTurn enqueues the turn and blocks until a worker completes it.
func (d *QueueDispatcher) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodePayload(queuePayload{Turn: req})
	if err != nil {
		return nil, err
	}

	if d.recorder != nil {
		if err := d.recorder.PutPending(ctx, &JobRecord{
			JobID:     payload.ID,
			PatientID: req.PatientID,
			Request:   &req,
		}); err != nil {
			d.logger.Warn("failed to record pending turn job", "job_id", payload.ID, "error", err)
		}
	}

	resultCh := make(chan dispatchResult, 1)
	d.pending.Store(payload.ID, resultCh)
	defer d.pending.Delete(payload.ID)

	if err := d.queue.Send(ctx, body); err != nil {
		return nil, fmt.Errorf("chat: failed to enqueue turn: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		return res.response, res.err
	}
}

// Shutdown stops worker goroutines and notifies any pending callers.
func (d *QueueDispatcher) Shutdown(ctx context.Context) error {
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	d.pending.Range(func(key, value any) bool {
		if ch, ok := value.(chan dispatchResult); ok {
			select {
			case ch <- dispatchResult{err: ErrDispatcherClosed}:
			default:
			}
		}
		d.pending.Delete(key)
		return true
	})

	return nil
}

func (d *QueueDispatcher) runWorker(workerID int) {
	defer d.wg.Done()
	d.logger.Debug("chat dispatcher worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-d.ctx.Done():
			d.logger.Debug("chat dispatcher worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := d.queue.Receive(d.ctx, d.cfg.receiveBatchSize, d.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			d.logger.Error("failed to receive turn jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			d.handleQueueMessage(msg)
		}
	}
}

func (d *QueueDispatcher) handleQueueMessage(msg queueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		d.logger.Error("failed to decode turn job", "error", err)
		deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.queue.Delete(deleteCtx, msg.ReceiptHandle)
		return
	}

	resp := d.processor.HandleTurn(d.ctx, payload.Turn)

	deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if delErr := d.queue.Delete(deleteCtx, msg.ReceiptHandle); delErr != nil {
		d.logger.Error("failed to delete turn job", "error", delErr)
	}

	if d.jobs != nil {
		var jobErr error
		if resp.Type == ResponseError {
			jobErr = d.jobs.MarkFailed(deleteCtx, payload.ID, resp.Message)
		} else {
			jobErr = d.jobs.MarkCompleted(deleteCtx, payload.ID, &resp)
		}
		if jobErr != nil {
			d.logger.Warn("failed to update turn job status", "job_id", payload.ID, "error", jobErr)
		}
	}

	d.deliverResult(payload.ID, &resp)
}

func (d *QueueDispatcher) deliverResult(jobID string, resp *TurnResponse) {
	value, ok := d.pending.Load(jobID)
	if !ok {
		d.logger.Debug("no waiting caller for turn job", "job_id", jobID)
		return
	}

	ch, ok := value.(chan dispatchResult)
	if !ok {
		d.logger.Error("chat dispatcher pending map corrupted", "job_id", jobID)
		d.pending.Delete(jobID)
		return
	}

	select {
	case ch <- dispatchResult{response: resp}:
	default:
	}
}

type dispatchResult struct {
	response *TurnResponse
	err      error
}
