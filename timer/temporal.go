package timer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/strix/pkg/slogx"
	"github.com/casualjim/strix/pkg/uuidx"
	"github.com/fogfish/opts"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	// WorkflowName is the registered name of the timer workflow.
	WorkflowName = "strix.timer"
	// ActivityName is the registered name of the activity emitting the completion.
	ActivityName = "strix.timer.emit"
	// DefaultTaskQueue is the task queue timers run on.
	DefaultTaskQueue = "strix-timers"
)

// Registry is the part of a Temporal worker the timer registers itself with.
// worker.Worker and the SDK test environment both satisfy it.
type Registry interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Completion is what the timer workflow hands to the emitting activity.
type Completion struct {
	Name      string         `json:"name"`
	Payload   map[string]any `json:"payload,omitempty"`
	ElapsedMs int64          `json:"elapsed_ms"`
}

// TemporalOption configures a Temporal timer service.
type TemporalOption = opts.Option[Temporal]

var (
	// TaskQueue sets the task queue timer workflows are started on.
	TaskQueue = opts.ForName[Temporal, string]("taskQueue")
	// WithTemporalLogger sets the logger for the client side of the service.
	WithTemporalLogger = opts.ForName[Temporal, *slog.Logger]("logger")
)

// Temporal runs each timer as a workflow. The client side starts workflows with
// Schedule; a worker hosting Register runs them and emits the completion event
// through its emitter once the durable timer fires.
type Temporal struct {
	client    client.Client
	emitter   Emitter
	taskQueue string
	logger    *slog.Logger
}

// NewTemporal creates a Temporal backed timer service. The client may be nil on
// a worker that only runs timers; the emitter may be nil on a client that only
// schedules them.
func NewTemporal(c client.Client, emitter Emitter, options ...TemporalOption) *Temporal {
	t := &Temporal{
		client:    c,
		emitter:   emitter,
		taskQueue: DefaultTaskQueue,
		logger:    slog.Default().With(slogx.LoggerName("strix.timer")),
	}
	if err := opts.Apply(t, options); err != nil {
		panic(err)
	}
	return t
}

// TaskQueue returns the task queue timer workflows run on.
func (t *Temporal) TaskQueue() string {
	return t.taskQueue
}

// Register registers the timer workflow and its activity with a worker.
func (t *Temporal) Register(r Registry) {
	r.RegisterWorkflowWithOptions(t.Run, workflow.RegisterOptions{Name: WorkflowName})
	r.RegisterActivityWithOptions(t.EmitCompletion, activity.RegisterOptions{Name: ActivityName})
}

// Schedule starts a timer workflow and returns its workflow id.
func (t *Temporal) Schedule(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if t.client == nil {
		return "", fmt.Errorf("temporal timer: no client configured")
	}

	id := uuidx.Prefixed("timer")
	run, err := t.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: t.taskQueue,
	}, WorkflowName, req)
	if err != nil {
		return "", fmt.Errorf("failed to start timer workflow: %w", err)
	}
	t.logger.DebugContext(ctx, "timer scheduled",
		slog.String("timer", id),
		slog.String("run_id", run.GetRunID()),
		slogx.Event(req.Completion),
	)
	return id, nil
}

// Cancel cancels a timer workflow that has not fired yet.
func (t *Temporal) Cancel(ctx context.Context, id string) error {
	if t.client == nil {
		return fmt.Errorf("temporal timer: no client configured")
	}
	return t.client.CancelWorkflow(ctx, id, "")
}

// Run is the timer workflow. The delay is drawn once and recorded so replays
// sleep for the same duration.
func (t *Temporal) Run(ctx workflow.Context, req Request) (Completion, error) {
	if err := req.Validate(); err != nil {
		return Completion{}, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidRequest", err)
	}

	var delay time.Duration
	if err := workflow.SideEffect(ctx, func(workflow.Context) interface{} {
		return req.Delay()
	}).Get(&delay); err != nil {
		return Completion{}, err
	}

	log := workflow.GetLogger(ctx)
	log.Info("timer started", "completion", req.Completion, "delay", delay)

	start := workflow.Now(ctx)
	if err := workflow.Sleep(ctx, delay); err != nil {
		return Completion{}, err
	}

	completion := Completion{
		Name:      req.Completion,
		Payload:   req.Payload,
		ElapsedMs: workflow.Now(ctx).Sub(start).Milliseconds(),
	}

	actx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout:    10 * time.Second,
		ScheduleToStartTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    100 * time.Millisecond,
			MaximumInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    5,
		},
	})
	if err := workflow.ExecuteActivity(actx, ActivityName, completion).Get(ctx, nil); err != nil {
		return Completion{}, fmt.Errorf("failed to emit timer completion: %w", err)
	}
	return completion, nil
}

// EmitCompletion is the activity emitting the completion event on this worker's bus.
func (t *Temporal) EmitCompletion(ctx context.Context, c Completion) error {
	if t.emitter == nil {
		return temporal.NewNonRetryableApplicationError("no emitter configured", "NoEmitter", nil)
	}
	log := activity.GetLogger(ctx)
	log.Info("timer fired", "completion", c.Name, "elapsed_ms", c.ElapsedMs)

	t.emitter.Emit(ctx, c.Name, completionPayload(c.Payload, time.Duration(c.ElapsedMs)*time.Millisecond))
	return nil
}
