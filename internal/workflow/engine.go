package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Logger is the logging surface Run uses. *slog.Logger and Temporal's workflow
// logger both satisfy it.
type Logger interface {
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
}

// Future is the pending result of an operation.
type Future interface {
	// Get blocks until the operation finishes and decodes its result into result,
	// which may be nil.
	Get(result interface{}) error
}

// Engine executes operations on behalf of Run.
type Engine interface {
	// Start dispatches the named operation. It never blocks.
	Start(op string, opts CallOptions, args ...interface{}) Future
	// Parallel runs branches concurrently and waits for all of them. It returns
	// the error of the first branch (in argument order) that failed.
	Parallel(branches ...func(Engine) error) error
	// Enter records the current stage.
	Enter(stage Stage)
	Logger() Logger
}

// LocalEngine runs operations in-process against an activities value. Arguments
// and results pass through JSON, so only serializable data crosses the boundary
// just as with a durable engine.
type LocalEngine struct {
	ctx     context.Context
	methods map[string]reflect.Value
	logger  *slog.Logger

	mu    sync.Mutex
	stage Stage
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// NewLocalEngine indexes the exported methods of activities that take a context
// first and return an error last.
func NewLocalEngine(ctx context.Context, activities interface{}, logger *slog.Logger) *LocalEngine {
	if logger == nil {
		logger = slog.Default()
	}
	v := reflect.ValueOf(activities)
	t := v.Type()
	methods := make(map[string]reflect.Value, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		mt := t.Method(i).Type // Includes the receiver
		if mt.NumIn() < 2 || mt.In(1) != contextType {
			continue
		}
		if mt.NumOut() == 0 || mt.Out(mt.NumOut()-1) != errorType {
			continue
		}
		methods[t.Method(i).Name] = v.Method(i)
	}
	return &LocalEngine{
		ctx:     ctx,
		methods: methods,
		logger:  logger.With("component", "local_engine"),
	}
}

// Stage returns the stage last entered.
func (e *LocalEngine) Stage() Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stage
}

func (e *LocalEngine) Enter(stage Stage) {
	e.mu.Lock()
	e.stage = stage
	e.mu.Unlock()
	e.logger.Info("entering stage", "stage", string(stage))
}

func (e *LocalEngine) Logger() Logger {
	return e.logger
}

type localFuture struct {
	done   chan struct{}
	result []byte
	err    error
}

func (f *localFuture) Get(result interface{}) error {
	<-f.done
	if f.err != nil {
		return f.err
	}
	if result == nil || f.result == nil {
		return nil
	}
	if err := json.Unmarshal(f.result, result); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

func (e *LocalEngine) Start(op string, opts CallOptions, args ...interface{}) Future {
	f := &localFuture{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.result, f.err = e.execute(op, opts, args)
	}()
	return f
}

func (e *LocalEngine) execute(op string, opts CallOptions, args []interface{}) ([]byte, error) {
	method, ok := e.methods[op]
	if !ok {
		return nil, precondition(fmt.Errorf("unknown operation %q", op))
	}
	in, err := decodeArgs(method.Type(), args)
	if err != nil {
		return nil, precondition(fmt.Errorf("operation %s: %w", op, err))
	}

	maxAttempts := opts.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b := backoff.NewExponentialBackOff()
	if opts.Retry.InitialInterval > 0 {
		b.InitialInterval = opts.Retry.InitialInterval
	}
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), e.ctx)

	var result []byte
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		res, err := e.attempt(method, in, opts.Timeout)
		if err == nil {
			result = res
			return nil
		}
		if IsPrecondition(err) {
			return backoff.Permanent(err)
		}
		e.logger.Warn("operation attempt failed", "operation", op, "attempt", attempt, "error", err)
		return err
	}, policy)

	switch {
	case err == nil:
		return result, nil
	case IsPrecondition(err):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %s failed after %d attempts: %v", ErrTimeoutExceeded, op, attempt, err)
	}
}

// attempt runs one call under the per-attempt timeout. The call is abandoned,
// not interrupted, when the timeout fires first.
func (e *LocalEngine) attempt(method reflect.Value, args []reflect.Value, timeout time.Duration) ([]byte, error) {
	ctx := e.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		result []byte
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := invoke(ctx, method, args)
		ch <- outcome{res, err}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func decodeArgs(mt reflect.Type, args []interface{}) ([]reflect.Value, error) {
	if want := mt.NumIn() - 1; len(args) != want {
		return nil, fmt.Errorf("expected %d arguments, got %d", want, len(args))
	}
	values := make([]reflect.Value, len(args))
	for i, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d is not serializable: %w", i, err)
		}
		pv := reflect.New(mt.In(i + 1))
		if err := json.Unmarshal(raw, pv.Interface()); err != nil {
			return nil, fmt.Errorf("argument %d does not match %s: %w", i, mt.In(i+1), err)
		}
		values[i] = pv.Elem()
	}
	return values, nil
}

func invoke(ctx context.Context, method reflect.Value, args []reflect.Value) ([]byte, error) {
	out := method.Call(append([]reflect.Value{reflect.ValueOf(ctx)}, args...))
	if errV := out[len(out)-1]; !errV.IsNil() {
		return nil, errV.Interface().(error)
	}
	if len(out) == 1 {
		return nil, nil
	}
	raw, err := json.Marshal(out[0].Interface())
	if err != nil {
		return nil, precondition(fmt.Errorf("result is not serializable: %w", err))
	}
	return raw, nil
}

func (e *LocalEngine) Parallel(branches ...func(Engine) error) error {
	errs := make([]error, len(branches))
	var wg sync.WaitGroup
	for i, branch := range branches {
		wg.Add(1)
		go func(i int, branch func(Engine) error) {
			defer wg.Done()
			errs[i] = branch(e)
		}(i, branch)
	}
	wg.Wait()
	return firstError(errs)
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

var _ Engine = (*LocalEngine)(nil)

// errorsAsStage returns the StageError inside err, if any.
func errorsAsStage(err error) (*StageError, bool) {
	var se *StageError
	ok := errors.As(err, &se)
	return se, ok
}
