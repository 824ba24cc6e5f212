package script

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/Shopify/go-lua"
	"github.com/kode4food/lru"
)

type (
	// Env compiles and runs sandboxed Lua chunks, caching compiled
	// bytecode and pooling interpreter states
	Env struct {
		pool  chan *lua.State
		cache *lru.Cache[*Compiled]
	}

	// Compiled is a chunk compiled against a fixed list of local names
	Compiled struct {
		bytecode []byte
		names    []string
	}
)

const (
	statePoolSize   = 10
	compiledCache   = 256
	globalTableIdx  = -2
	arrayTableIdx   = -3
	mapTableIdx     = -3
	localTemplate   = "local %s = select(%d, ...)"
	globalTableName = "_G"
	varsName        = "vars"
	chunkName       = "chunk"
	maxLocals       = 150
	hookInterval    = 1000
)

var (
	ErrEmptyScript = errors.New("script is empty")
	ErrLoad        = errors.New("lua load error")
	ErrExecution   = errors.New("lua execution error")
	ErrInterrupted = errors.New("lua execution interrupted")
)

var excluded = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
	"pcall", "xpcall",
}

var keywords = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "goto": true,
	"if": true, "in": true, "local": true, "nil": true, "not": true,
	"or": true, "repeat": true, "return": true, "then": true, "true": true,
	"until": true, "while": true,
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewEnv creates a Lua environment with a state pool and compile cache
func NewEnv() *Env {
	return &Env{
		pool:  make(chan *lua.State, statePoolSize),
		cache: lru.NewCache[*Compiled](compiledCache),
	}
}

// Validate checks that src compiles as an expression or a chunk
func (e *Env) Validate(src string) error {
	_, err := e.compileExpr(src, nil)
	return err
}

// Evaluate runs src as a boolean expression over vars. A bare expression
// such as `amount > 100` is accepted as well as a chunk with its own
// return statement. Evaluation stops with ErrInterrupted once ctx is done
func (e *Env) Evaluate(
	ctx context.Context, src string, vars map[string]any,
) (bool, error) {
	c, err := e.compileExpr(src, localNames(vars))
	if err != nil {
		return false, err
	}

	L := e.getState()
	defer e.returnState(ctx, L)

	if err := e.call(ctx, L, c, vars); err != nil {
		return false, err
	}
	res := L.ToBoolean(-1)
	L.Pop(1)
	return res, nil
}

// Execute runs src as a chunk over vars. A returned table becomes the
// output variables; any other value is returned under "result"
func (e *Env) Execute(
	ctx context.Context, src string, vars map[string]any,
) (map[string]any, error) {
	c, err := e.compile(src, localNames(vars))
	if err != nil {
		return nil, err
	}

	L := e.getState()
	defer e.returnState(ctx, L)

	if err := e.call(ctx, L, c, vars); err != nil {
		return nil, err
	}

	var res map[string]any
	switch {
	case L.IsTable(-1):
		res = tableToMap(L, -1)
	case L.IsNil(-1):
		res = map[string]any{}
	default:
		res = map[string]any{"result": toGo(L, -1)}
	}
	L.Pop(1)
	return res, nil
}

func (e *Env) compileExpr(src string, names []string) (*Compiled, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return nil, ErrEmptyScript
	}
	if c, err := e.compile("return "+trimmed, names); err == nil {
		return c, nil
	}
	return e.compile(trimmed, names)
}

func (e *Env) compile(src string, names []string) (*Compiled, error) {
	if strings.TrimSpace(src) == "" {
		return nil, ErrEmptyScript
	}
	return e.cache.Get(cacheKey(src, names), func() (*Compiled, error) {
		return build(src, names)
	})
}

func (e *Env) call(
	ctx context.Context, L *lua.State, c *Compiled, vars map[string]any,
) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}

	sandbox(L)
	err := L.Load(bytes.NewReader(c.bytecode), chunkName, "b")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	pushEnv(L)
	lua.SetUpValue(L, -2, 1)

	pushMap(L, vars)
	for _, name := range c.names {
		pushValue(L, vars[name])
	}

	if ctx.Done() != nil {
		lua.SetDebugHook(L, interrupt(ctx), lua.MaskCount, hookInterval)
		defer lua.SetDebugHook(L, nil, 0, 0)
	}

	if err := L.ProtectedCall(len(c.names)+1, 1, 0); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, ctxErr)
		}
		return fmt.Errorf("%w: %w", ErrExecution, err)
	}
	return nil
}

func (e *Env) getState() *lua.State {
	select {
	case L := <-e.pool:
		return L
	default:
		return lua.NewState()
	}
}

func (e *Env) returnState(ctx context.Context, L *lua.State) {
	if ctx.Err() != nil {
		return
	}
	L.SetTop(0)
	select {
	case e.pool <- L:
	default:
	}
}

func build(src string, names []string) (*Compiled, error) {
	locals := make([]string, 0, len(names)+1)
	locals = append(locals, fmt.Sprintf(localTemplate, varsName, 1))
	for i, name := range names {
		locals = append(locals, fmt.Sprintf(localTemplate, name, i+2))
	}
	full := strings.Join(append(locals, src), "\n")

	L := lua.NewState()
	sandbox(L)
	if err := lua.LoadString(L, full); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	var buf bytes.Buffer
	if err := L.Dump(&buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return &Compiled{
		bytecode: buf.Bytes(),
		names:    names,
	}, nil
}

func sandbox(L *lua.State) {
	lua.OpenLibraries(L)
	L.Global(globalTableName)
	for _, name := range excluded {
		L.PushNil()
		L.SetField(globalTableIdx, name)
	}
	L.Pop(1)
}

// pushEnv pushes a fresh environment table for a single call. Globals
// assigned by the chunk land in this table, while reads fall through to
// the sandboxed global table
func pushEnv(L *lua.State) {
	L.NewTable()
	L.PushValue(-1)
	L.SetField(-2, globalTableName)

	L.NewTable()
	L.PushGlobalTable()
	L.SetField(-2, "__index")
	L.PushBoolean(false)
	L.SetField(-2, "__metatable")
	L.SetMetaTable(-2)
}

func interrupt(ctx context.Context) lua.Hook {
	return func(L *lua.State, _ lua.Debug) {
		if err := ctx.Err(); err != nil {
			lua.Errorf(L, "%s", err.Error())
		}
	}
}

func localNames(vars map[string]any) []string {
	var res []string
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		if len(res) == maxLocals {
			break
		}
		if k != varsName && identifier.MatchString(k) && !keywords[k] {
			res = append(res, k)
		}
	}
	return res
}

func cacheKey(src string, names []string) string {
	h := sha256.New()
	_, _ = h.Write([]byte(src))
	for _, n := range names {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(n))
	}
	return hex.EncodeToString(h.Sum(nil))
}
