package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mixelka/mailwatch/internal/command"
	"github.com/mixelka/mailwatch/internal/email"
)

// ErrUnknownVerb is returned when no action is registered for a verb
var ErrUnknownVerb = errors.New("unknown command verb")

// DispatchError wraps a failure of the action behind a verb
type DispatchError struct {
	Verb string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("command %q failed: %v", e.Verb, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Request is an authorized command together with its origin
type Request struct {
	Command   command.Command
	Sender    email.Address
	MessageID string
	Subject   string
}

// Action executes one verb and returns a short summary
type Action interface {
	Run(ctx context.Context, req Request) (string, error)
}

// ActionFunc adapts a function to Action
type ActionFunc func(ctx context.Context, req Request) (string, error)

// Run calls f(ctx, req)
func (f ActionFunc) Run(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Dispatcher maps verbs to actions
type Dispatcher struct {
	mu      sync.RWMutex
	actions map[string]Action
	logger  *slog.Logger
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		actions: make(map[string]Action),
		logger:  logger.With("component", "dispatcher"),
	}
}

// Register binds an action to a verb, replacing any previous binding
func (d *Dispatcher) Register(verb string, a Action) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions[verb] = a
}

// Verbs returns the registered verbs, sorted
func (d *Dispatcher) Verbs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	verbs := make([]string, 0, len(d.actions))
	for v := range d.actions {
		verbs = append(verbs, v)
	}
	sort.Strings(verbs)
	return verbs
}

// Dispatch runs the action for req.Command.Verb exactly once.
// Failures are returned as *DispatchError and are not retried.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (string, error) {
	d.mu.RLock()
	action, ok := d.actions[req.Command.Verb]
	d.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownVerb, req.Command.Verb)
	}

	d.logger.Info("dispatching command",
		"verb", req.Command.Verb,
		"argument", req.Command.Argument,
		"sender", req.Sender.Address,
	)

	summary, err := action.Run(ctx, req)
	if err != nil {
		return "", &DispatchError{Verb: req.Command.Verb, Err: err}
	}
	return summary, nil
}
