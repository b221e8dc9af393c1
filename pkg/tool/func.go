package tool

import (
	"context"
	"time"
)

// Func adapts a plain Go function into a Tool.
type Func struct {
	def Definition
	fn  func(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// NewFunc wraps fn with the given definition.
func NewFunc(def Definition, fn func(ctx context.Context, args map[string]interface{}) (interface{}, error)) *Func {
	if def.Type == "" {
		def.Type = TypeFunction
	}
	return &Func{def: def, fn: fn}
}

func (f *Func) Definition() Definition {
	return f.def
}

func (f *Func) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	start := time.Now()

	if err := ValidateArgs(f.def, args); err != nil {
		return Fail(err.Error(), time.Since(start)), nil
	}

	output, err := f.fn(ctx, args)
	if err != nil {
		return Fail(err.Error(), time.Since(start)), nil
	}
	return Succeed(output, time.Since(start)), nil
}
