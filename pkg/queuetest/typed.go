package queuetest

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	callType    = reflect.TypeOf((*Call)(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Func adapts a plain Go function into a Handler.
//
// fn takes an optional leading context.Context, an optional *Call, then one
// parameter per element of the call's data list. It returns error or
// (T, error); T becomes the single output value. Data elements are decoded
// into the parameter types through JSON.
func Func(fn any) (Handler, error) {
	if fn == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	fnVal := reflect.ValueOf(fn)
	if fnVal.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function")
	}
	if fnVal.IsNil() {
		return nil, fmt.Errorf("handler function cannot be nil")
	}
	fnType := fnVal.Type()
	if fnType.IsVariadic() {
		return nil, fmt.Errorf("handler cannot be variadic")
	}

	idx := 0
	hasCtx := idx < fnType.NumIn() && fnType.In(idx) == contextType
	if hasCtx {
		idx++
	}
	hasCall := idx < fnType.NumIn() && fnType.In(idx) == callType
	if hasCall {
		idx++
	}
	params := make([]reflect.Type, 0, fnType.NumIn()-idx)
	for i := idx; i < fnType.NumIn(); i++ {
		params = append(params, fnType.In(i))
	}

	switch fnType.NumOut() {
	case 1:
		if !fnType.Out(0).Implements(errorType) {
			return nil, fmt.Errorf("handler must return error")
		}
	case 2:
		if !fnType.Out(1).Implements(errorType) {
			return nil, fmt.Errorf("handler must return (T, error)")
		}
	default:
		return nil, fmt.Errorf("handler must return error or (T, error)")
	}

	return func(ctx context.Context, call *Call) ([]any, error) {
		if len(call.Args) != len(params) {
			return nil, fmt.Errorf("expected %d arguments, got %d", len(params), len(call.Args))
		}

		in := make([]reflect.Value, 0, fnType.NumIn())
		if hasCtx {
			in = append(in, reflect.ValueOf(ctx))
		}
		if hasCall {
			in = append(in, reflect.ValueOf(call))
		}
		for i, typ := range params {
			v, err := decodeArg(call.Args[i], typ)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
			in = append(in, v)
		}

		out := fnVal.Call(in)
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
		if len(out) == 1 {
			return []any{}, nil
		}
		return []any{out[0].Interface()}, nil
	}, nil
}

// MustFunc is like Func but panics on an invalid signature.
func MustFunc(fn any) Handler {
	h, err := Func(fn)
	if err != nil {
		panic(err)
	}
	return h
}

func decodeArg(arg any, typ reflect.Type) (reflect.Value, error) {
	if arg != nil {
		if v := reflect.ValueOf(arg); v.Type().AssignableTo(typ) {
			return v, nil
		}
	}
	b, err := json.Marshal(arg)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("failed to marshal argument: %w", err)
	}
	ptr := reflect.New(typ)
	if err := json.Unmarshal(b, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("failed to unmarshal argument: %w", err)
	}
	return ptr.Elem(), nil
}
