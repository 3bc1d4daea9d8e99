package recipe

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkEvaluator executes Starlark recipe generators safely. A
// generator script must leave a "recipes" global holding a list of
// recipe dicts in the wire form.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// StarlarkResult is the outcome of one script evaluation.
type StarlarkResult struct {
	Output        map[string]interface{}
	ExecutionTime time.Duration
	Error         string
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// GenerateRecipes evaluates a generator script and decodes its
// "recipes" global into wire-form recipe records.
func (se *StarlarkEvaluator) GenerateRecipes(ctx context.Context, script string) ([]RecipeConfig, error) {
	result, err := se.Evaluate(ctx, script, nil)
	if err != nil {
		return nil, err
	}

	raw, ok := result.Output["recipes"]
	if !ok {
		return nil, fmt.Errorf("generator did not define a \"recipes\" global")
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("\"recipes\" must be a list, got %T", raw)
	}

	configs := make([]RecipeConfig, 0, len(items))
	for i, item := range items {
		dict, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("recipes[%d] must be a dict, got %T", i, item)
		}
		rc, err := decodeRecipeDict(dict)
		if err != nil {
			return nil, fmt.Errorf("recipes[%d]: %w", i, err)
		}
		configs = append(configs, rc)
	}

	return configs, nil
}

// Evaluate executes a Starlark script with the given input and returns the result.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, script string, input map[string]interface{}) (*StarlarkResult, error) {
	startTime := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	resultCh := make(chan *StarlarkResult, 1)
	errCh := make(chan error, 1)

	go func() {
		result, err := se.evaluateSync(script, input)
		if err != nil {
			errCh <- err
		} else {
			resultCh <- result
		}
	}()

	select {
	case <-evalCtx.Done():
		return &StarlarkResult{
			ExecutionTime: time.Since(startTime),
			Error:         fmt.Sprintf("execution timeout after %v", se.timeout),
		}, fmt.Errorf("starlark execution timeout")
	case err := <-errCh:
		return &StarlarkResult{
			ExecutionTime: time.Since(startTime),
			Error:         err.Error(),
		}, err
	case result := <-resultCh:
		result.ExecutionTime = time.Since(startTime)
		return result, nil
	}
}

// evaluateSync performs the actual Starlark evaluation synchronously.
func (se *StarlarkEvaluator) evaluateSync(script string, input map[string]interface{}) (*StarlarkResult, error) {
	thread := &starlark.Thread{
		Name: "storm",
		Print: func(_ *starlark.Thread, msg string) {
			// Suppress print for security
		},
	}

	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
	}

	predeclared["range"] = starlark.NewBuiltin("range", builtinRange)
	predeclared["enumerate"] = starlark.NewBuiltin("enumerate", builtinEnumerate)
	predeclared["zip"] = starlark.NewBuiltin("zip", builtinZip)
	predeclared["recipe"] = starlark.NewBuiltin("recipe", builtinRecipe)

	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	globals, err := starlark.ExecFile(thread, "recipes.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]interface{})
	for name, val := range globals {
		// Skip internal variables (starting with _)
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = goVal
	}

	return &StarlarkResult{
		Output: output,
	}, nil
}

// decodeRecipeDict maps one generator dict onto a RecipeConfig.
func decodeRecipeDict(dict map[string]interface{}) (RecipeConfig, error) {
	var rc RecipeConfig

	for key, val := range dict {
		switch key {
		case "name":
			s, ok := val.(string)
			if !ok {
				return rc, fmt.Errorf("name must be a string")
			}
			rc.Name = s
		case "version":
			s, ok := val.(string)
			if !ok {
				return rc, fmt.Errorf("version must be a string")
			}
			rc.Version = s
		case "deps":
			items, ok := val.([]interface{})
			if !ok {
				return rc, fmt.Errorf("deps must be a list")
			}
			for _, item := range items {
				switch dep := item.(type) {
				case string:
					rc.Deps = append(rc.Deps, DependencyConfig{Name: dep})
				case map[string]interface{}:
					name, _ := dep["name"].(string)
					constraint, _ := dep["constraint"].(string)
					rc.Deps = append(rc.Deps, DependencyConfig{Name: name, Constraint: constraint})
				default:
					return rc, fmt.Errorf("deps entries must be strings or dicts")
				}
			}
		case "conflicts":
			items, ok := val.([]interface{})
			if !ok {
				return rc, fmt.Errorf("conflicts must be a list")
			}
			for _, item := range items {
				s, ok := item.(string)
				if !ok {
					return rc, fmt.Errorf("conflicts entries must be strings")
				}
				rc.Conflicts = append(rc.Conflicts, s)
			}
		case "steps":
			items, ok := val.([]interface{})
			if !ok {
				return rc, fmt.Errorf("steps must be a list")
			}
			for _, item := range items {
				s, ok := item.(string)
				if !ok {
					return rc, fmt.Errorf("steps entries must be strings")
				}
				rc.Steps = append(rc.Steps, s)
			}
		case "output":
			s, ok := val.(string)
			if !ok {
				return rc, fmt.Errorf("output must be a string")
			}
			rc.Output = s
		case "network":
			b, ok := val.(bool)
			if !ok {
				return rc, fmt.Errorf("network must be a bool")
			}
			rc.Network = b
		case "env":
			m, ok := val.(map[string]interface{})
			if !ok {
				return rc, fmt.Errorf("env must be a dict")
			}
			rc.Env = make(map[string]string, len(m))
			for k, v := range m {
				s, ok := v.(string)
				if !ok {
					return rc, fmt.Errorf("env values must be strings")
				}
				rc.Env[k] = s
			}
		default:
			return rc, fmt.Errorf("unknown recipe field %q", key)
		}
	}

	return rc, nil
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

// Built-in Starlark functions

// builtinRecipe builds a recipe dict from keyword arguments, so
// generators can write recipe(name="zlib", version="1.3") instead of
// spelling out the dict literal.
func builtinRecipe(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("recipe accepts keyword arguments only")
	}

	dict := starlark.NewDict(len(kwargs))
	for _, kv := range kwargs {
		key, ok := kv[0].(starlark.String)
		if !ok {
			return nil, fmt.Errorf("recipe keyword must be a string")
		}
		if err := dict.SetKey(key, kv[1]); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

// builtinRange implements the range() built-in function.
func builtinRange(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var start, stop, step int64 = 0, 0, 1

	switch len(args) {
	case 1:
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "stop", &stop); err != nil {
			return nil, err
		}
	case 2:
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "start", &start, "stop", &stop); err != nil {
			return nil, err
		}
	case 3:
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "start", &start, "stop", &stop, "step", &step); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("range takes 1 to 3 arguments, got %d", len(args))
	}

	if step == 0 {
		return nil, fmt.Errorf("range step cannot be zero")
	}

	var list []starlark.Value
	if step > 0 {
		for i := start; i < stop; i += step {
			list = append(list, starlark.MakeInt64(i))
		}
	} else {
		for i := start; i > stop; i += step {
			list = append(list, starlark.MakeInt64(i))
		}
	}

	return starlark.NewList(list), nil
}

// builtinEnumerate implements the enumerate() built-in function.
func builtinEnumerate(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Iterable
	var start int64 = 0

	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "iterable", &iterable, "start?", &start); err != nil {
		return nil, err
	}

	iter := iterable.Iterate()
	defer iter.Done()

	var list []starlark.Value
	var x starlark.Value
	i := start
	for iter.Next(&x) {
		tuple := starlark.Tuple{starlark.MakeInt64(i), x}
		list = append(list, tuple)
		i++
	}

	return starlark.NewList(list), nil
}

// builtinZip implements the zip() built-in function.
func builtinZip(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) == 0 {
		return starlark.NewList(nil), nil
	}

	iters := make([]starlark.Iterator, len(args))
	for i, arg := range args {
		iterable, ok := arg.(starlark.Iterable)
		if !ok {
			return nil, fmt.Errorf("zip argument %d is not iterable", i)
		}
		iters[i] = iterable.Iterate()
		defer iters[i].Done()
	}

	var list []starlark.Value
	for {
		tuple := make(starlark.Tuple, len(iters))
		for i, iter := range iters {
			if !iter.Next(&tuple[i]) {
				// One iterator is exhausted, stop
				return starlark.NewList(list), nil
			}
		}
		list = append(list, tuple)
	}
}
