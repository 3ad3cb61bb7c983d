package strix

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/casualjim/strix/decision"
	"github.com/casualjim/strix/events"
	"github.com/fogfish/opts"
)

// BusOption configures a Bus.
type BusOption = opts.Option[Bus]

var (
	// Workers sets the number of handler goroutines.
	Workers = opts.ForName[Bus, int]("workers")
	// QueueSize bounds the job queue between the scheduler and the workers.
	QueueSize = opts.ForName[Bus, int]("queueSize")
	// MaxChainDepth drops events emitted more than n handler hops away from the
	// emission that started the chain. Zero means unlimited.
	MaxChainDepth = opts.ForName[Bus, int]("maxDepth")
	// WithLogger sets the logger used by the bus and its dispatcher.
	WithLogger = opts.ForName[Bus, *slog.Logger]("logger")
	// WithEvaluator sets the evaluator used by Decide.
	WithEvaluator = opts.ForName[Bus, decision.Evaluator]("evaluator")
	// EvaluatorTimeout bounds each decision evaluation.
	EvaluatorTimeout = opts.ForName[Bus, time.Duration]("evaluatorTimeout")
	// OnHandlerError observes every handler failure.
	OnHandlerError = opts.ForName[Bus, func(*HandlerExecutionError)]("onError")
)

const (
	EnvWorkers       = "STRIX_WORKERS"
	EnvQueueSize     = "STRIX_QUEUE_SIZE"
	EnvMaxChainDepth = "STRIX_MAX_CHAIN_DEPTH"
)

// FromEnv reads STRIX_WORKERS, STRIX_QUEUE_SIZE and STRIX_MAX_CHAIN_DEPTH.
// Unset variables leave the current value alone.
func FromEnv() BusOption {
	return opts.Type[Bus](func(b *Bus) error {
		var errs []error
		if v, ok, err := envInt(EnvWorkers); err != nil {
			errs = append(errs, err)
		} else if ok {
			b.workers = v
		}
		if v, ok, err := envInt(EnvQueueSize); err != nil {
			errs = append(errs, err)
		} else if ok {
			b.queueSize = v
		}
		if v, ok, err := envInt(EnvMaxChainDepth); err != nil {
			errs = append(errs, err)
		} else if ok {
			b.maxDepth = v
		}
		return errors.Join(errs...)
	})
}

func envInt(key string) (int, bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v < 0 {
		return 0, false, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return v, true, nil
}

// AgentOption configures an Agent.
type AgentOption = opts.Option[Agent]

var (
	// AgentID sets the agent id. Ids are unique per bus; a random id is used when unset.
	AgentID = opts.ForName[Agent, string]("id")
	// AgentName sets a display name. Defaults to the id.
	AgentName = opts.ForName[Agent, string]("name")
)

// WithBindings adds a binding table to the agent.
func WithBindings(bindings *Bindings) AgentOption {
	return opts.Type[Agent](func(a *Agent) error {
		if bindings == nil {
			return errors.New("bindings are required")
		}
		a.bindings.Merge(bindings)
		return nil
	})
}

// Bind adds the binding table exposed by v, usually generated by strix-bindgen.
func Bind(v Bindable) AgentOption {
	return opts.Type[Agent](func(a *Agent) error {
		if v == nil {
			return errors.New("bindable is required")
		}
		a.bindings.Merge(v.Bindings())
		return nil
	})
}

// Handle adds a single binding to the agent.
func Handle(name, pattern string, handler events.HandlerFunc) AgentOption {
	return opts.Type[Agent](func(a *Agent) error {
		a.bindings.Add(On(name, pattern, handler))
		return nil
	})
}
