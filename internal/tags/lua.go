package tags

import (
	"fmt"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// CustomFilter wraps a Lua script exposing a filter(tags) function that
// supplements a Compiled tag predicate (§4.1's custom_filter hook). One
// Lua state is created per compiled filter and reused across calls; callers
// must not invoke Keep from more than one goroutine at a time, which
// matches every stage's single streaming pass over its source.
type CustomFilter struct {
	state *lua.LState
}

// LoadCustomFilter reads Lua source from spec, either inline (multi-line
// source or source containing "function") or a file path, and requires a
// global filter(tags) function taking a table of tag key/value strings and
// returning a boolean.
func LoadCustomFilter(spec string) (*CustomFilter, error) {
	src, err := readCustomFilterSource(spec)
	if err != nil {
		return nil, err
	}

	L := lua.NewState()
	if err := L.DoString(src); err != nil {
		L.Close()
		return nil, fmt.Errorf("load custom filter: %w", err)
	}
	if fn, ok := L.GetGlobal("filter").(*lua.LFunction); !ok || fn == nil {
		L.Close()
		return nil, fmt.Errorf("custom filter script has no global filter(tags) function")
	}
	return &CustomFilter{state: L}, nil
}

func readCustomFilterSource(spec string) (string, error) {
	trimmed := strings.TrimSpace(spec)
	if strings.Contains(trimmed, "function") || strings.Contains(trimmed, "\n") {
		return spec, nil
	}
	data, err := os.ReadFile(spec)
	if err != nil {
		return "", fmt.Errorf("read custom filter %s: %w", spec, err)
	}
	return string(data), nil
}

// Close releases the underlying Lua state.
func (c *CustomFilter) Close() {
	c.state.Close()
}

// Keep calls the script's filter(tags) function with t converted to a Lua
// table of string keys and values, and reports whether the feature passes.
func (c *CustomFilter) Keep(t map[string]string) (bool, error) {
	tbl := c.state.NewTable()
	for k, v := range t {
		tbl.RawSetString(k, lua.LString(v))
	}

	if err := c.state.CallByParam(lua.P{
		Fn:      c.state.GetGlobal("filter"),
		NRet:    1,
		Protect: true,
	}, tbl); err != nil {
		return false, fmt.Errorf("custom filter: %w", err)
	}
	defer c.state.Pop(1)

	return lua.LVAsBool(c.state.Get(-1)), nil
}

// WithCustomFilter returns a Compiled whose predicate passes only when both
// compiled's own predicate and cf's script pass.
func WithCustomFilter(compiled *Compiled, cf *CustomFilter) *Compiled {
	inner := compiled.Predicate
	wrapped := *compiled
	wrapped.Predicate = func(t map[string]string) (bool, string) {
		passed, group := inner(t)
		if !passed {
			return false, group
		}
		ok, err := cf.Keep(t)
		if err != nil || !ok {
			return false, group
		}
		return true, group
	}
	return &wrapped
}
