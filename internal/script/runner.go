// Package script runs custom tool logic written in JavaScript on an embedded
// goja interpreter with a closed set of globals.
package script

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"
)

const maxCallStackSize = 1024

// allowedGlobals are the only globals a script can see besides args.
var allowedGlobals = map[string]bool{
	"JSON": true, "Math": true, "Date": true,
	"String": true, "Number": true, "Boolean": true, "Array": true, "Object": true, "RegExp": true,
	"Error": true, "TypeError": true, "RangeError": true, "SyntaxError": true,
	"ReferenceError": true, "EvalError": true, "URIError": true,
	"parseInt": true, "parseFloat": true, "isNaN": true, "isFinite": true,
	"NaN": true, "Infinity": true, "undefined": true,
	"encodeURIComponent": true, "decodeURIComponent": true,
}

var errTimeout = errors.New("time budget exceeded")

// Error is a failure raised by a script: a thrown exception, a syntax error,
// a rejected promise or an interrupted run.
type Error struct {
	Tool    string
	Message string
	Timeout bool
}

func (e *Error) Error() string {
	if e.Timeout {
		return fmt.Sprintf("script %s: %s", e.Tool, e.Message)
	}
	return fmt.Sprintf("script %s threw: %s", e.Tool, e.Message)
}

// Runner executes script sources. It is safe for concurrent use; every run
// gets its own interpreter.
type Runner struct {
	timeout time.Duration
}

// NewRunner creates a runner with a wall-clock budget per run. Zero disables
// the budget.
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{timeout: timeout}
}

// Run executes source as the body of function(args). The returned value is
// the exported result of the function. An empty source yields a diagnostic
// string rather than an error.
func (r *Runner) Run(ctx context.Context, name, source string, args map[string]any) (any, error) {
	if strings.TrimSpace(source) == "" {
		return fmt.Sprintf("Tool %q has no logic defined.", name), nil
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)
	if err := sandbox(vm, name); err != nil {
		return nil, fmt.Errorf("prepare sandbox: %w", err)
	}

	fnValue, err := vm.RunScript(name+".js", "(function(args) {\n"+source+"\n})")
	if err != nil {
		return nil, &Error{Tool: name, Message: errorMessage(err)}
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, &Error{Tool: name, Message: "script did not compile to a function"}
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()
	if r.timeout > 0 {
		timer := time.AfterFunc(r.timeout, func() { vm.Interrupt(errTimeout) })
		defer timer.Stop()
	}

	result, err := fn(goja.Undefined(), vm.ToValue(normalizeArgs(args)))
	if err != nil {
		return nil, r.convertError(name, err)
	}

	if p, ok := result.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			result = p.Result()
		case goja.PromiseStateRejected:
			return nil, &Error{Tool: name, Message: valueMessage(p.Result())}
		default:
			return nil, &Error{Tool: name, Message: "script returned a promise that never settled"}
		}
	}

	if result == nil || goja.IsUndefined(result) {
		return nil, nil
	}
	return result.Export(), nil
}

func (r *Runner) convertError(name string, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			if errors.Is(cause, errTimeout) {
				return &Error{Tool: name, Message: fmt.Sprintf("execution exceeded %s", r.timeout), Timeout: true}
			}
			return &Error{Tool: name, Message: "execution cancelled: " + cause.Error(), Timeout: true}
		}
		return &Error{Tool: name, Message: "execution interrupted", Timeout: true}
	}
	return &Error{Tool: name, Message: errorMessage(err)}
}

// sandbox removes every global outside the allowlist and installs the host
// helpers.
func sandbox(vm *goja.Runtime, name string) error {
	global := vm.GlobalObject()
	for _, key := range global.GetOwnPropertyNames() {
		if allowedGlobals[key] {
			continue
		}
		if err := global.Delete(key); err != nil {
			return fmt.Errorf("remove global %s: %w", key, err)
		}
	}

	if err := vm.Set("btoa", func(s string) string {
		return base64.StdEncoding.EncodeToString([]byte(s))
	}); err != nil {
		return err
	}
	if err := vm.Set("atob", func(s string) (string, error) {
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
		if err != nil {
			return "", fmt.Errorf("atob: invalid base64 input")
		}
		return string(b), nil
	}); err != nil {
		return err
	}

	console := vm.NewObject()
	for level, emit := range map[string]func(string){
		"log":   func(msg string) { log.Info().Str("tool", name).Msg(msg) },
		"info":  func(msg string) { log.Info().Str("tool", name).Msg(msg) },
		"debug": func(msg string) { log.Debug().Str("tool", name).Msg(msg) },
		"warn":  func(msg string) { log.Warn().Str("tool", name).Msg(msg) },
		"error": func(msg string) { log.Error().Str("tool", name).Msg(msg) },
	} {
		if err := console.Set(level, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = consoleString(arg)
			}
			emit("[" + name + "] " + strings.Join(parts, " "))
			return goja.Undefined()
		}); err != nil {
			return err
		}
	}
	return vm.Set("console", console)
}

func consoleString(v goja.Value) string {
	if obj, ok := v.(*goja.Object); ok && obj.ClassName() != "Error" {
		if b, err := json.Marshal(obj.Export()); err == nil {
			return string(b)
		}
	}
	return v.String()
}

func errorMessage(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return valueMessage(ex.Value())
	}
	return err.Error()
}

// valueMessage renders a thrown value: "Name: message" for Error objects,
// the string form otherwise.
func valueMessage(v goja.Value) string {
	if v == nil {
		return "unknown error"
	}
	if obj, ok := v.(*goja.Object); ok {
		msg := obj.Get("message")
		if msg != nil && !goja.IsUndefined(msg) {
			if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) && n.String() != "" {
				return n.String() + ": " + msg.String()
			}
			return msg.String()
		}
	}
	return v.String()
}

// normalizeArgs converts json.Number values so scripts see plain numbers.
func normalizeArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		return normalizeArgs(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}
