package filter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

const defaultScriptTimeout = 250 * time.Millisecond

// Script is a strategy written as a JavaScript function:
//
//	function(defaultView, projectWorkspace, cod, tableOwner, isPrimary) { return {...} }
//
// Each call runs in a fresh VM.
type Script struct {
	program *goja.Program
	timeout time.Duration
}

func NewScript(src string, timeout time.Duration) (*Script, error) {
	if strings.TrimSpace(src) == "" {
		return nil, errors.New("script strategy needs a script")
	}
	prg, err := goja.Compile("filter", "("+src+")", true)
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}

	v, err := goja.New().RunProgram(prg)
	if err != nil {
		return nil, fmt.Errorf("evaluate script: %w", err)
	}
	if _, ok := goja.AssertFunction(v); !ok {
		return nil, errors.New("script is not a function")
	}

	if timeout <= 0 {
		timeout = defaultScriptTimeout
	}
	return &Script{program: prg, timeout: timeout}, nil
}

func (s *Script) Build(ctx context.Context, args Args) (Expression, error) {
	vm := goja.New()
	v, err := vm.RunProgram(s.program)
	if err != nil {
		return nil, fmt.Errorf("evaluate script: %w", err)
	}
	fn, _ := goja.AssertFunction(v)

	timer := time.AfterFunc(s.timeout, func() { vm.Interrupt("script timed out") })
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	res, err := fn(goja.Undefined(),
		vm.ToValue(args.DefaultView),
		vm.ToValue(args.ProjectWorkspace),
		vm.ToValue(args.Cod),
		vm.ToValue(args.TableOwner),
		vm.ToValue(args.IsPrimary),
	)
	if err != nil {
		var interrupted *goja.InterruptedError
		var exception *goja.Exception
		switch {
		case errors.As(err, &interrupted):
			return nil, fmt.Errorf("script interrupted: %v", interrupted.Value())
		case errors.As(err, &exception):
			return nil, fmt.Errorf("script threw: %s", exception.Value().String())
		default:
			return nil, err
		}
	}

	if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return Expression{}, nil
	}
	out, ok := res.Export().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("script returned %T, want an object", res.Export())
	}
	return Expression(out), nil
}
