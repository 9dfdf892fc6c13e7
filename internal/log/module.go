package log

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Module names this server logs under, the dotted hierarchy operators
// enable individually via SetDebugModules ("wire" enables every
// "wire.*" submodule too).
const (
	ModuleWire     = "wire"
	ModuleBackend  = "backend"
	ModuleAggr     = "agg"
	ModuleDispatch = "dispatch"
	ModuleCursor   = "cursor"
	ModuleShadow   = "shadow"
)

// ModuleLoggerFactory decides, per named logger, whether Debug-level
// lines should pass through -- either because global debug is on, or
// because the module (or an ancestor in its dotted name) is explicitly
// enabled.
type ModuleLoggerFactory struct {
	logger      *zap.Logger
	globalDebug bool
	moduleDebug map[string]bool
}

// NewModuleLoggerFactory wraps an already-built logger with per-module
// debug filtering.
func NewModuleLoggerFactory(logger *zap.Logger, globalDebug bool, moduleDebug map[string]bool) *ModuleLoggerFactory {
	return &ModuleLoggerFactory{logger: logger, globalDebug: globalDebug, moduleDebug: moduleDebug}
}

// IsDebugEnabled reports whether Debug-level logs for module should be
// emitted: true unconditionally when globalDebug is set, otherwise by
// walking from the full dotted name up to its ancestors (so enabling
// "proxy" also enables "proxy.http") until an explicit entry is found.
func (f *ModuleLoggerFactory) IsDebugEnabled(module string) bool {
	if f.globalDebug {
		return true
	}
	name := module
	for {
		if enabled, ok := f.moduleDebug[name]; ok {
			return enabled
		}
		idx := strings.LastIndex(name, ".")
		if idx < 0 {
			return false
		}
		name = name[:idx]
	}
}

// GetLogger returns a logger named module whose Debug-level output is
// filtered by IsDebugEnabled; Info and above always pass through.
func (f *ModuleLoggerFactory) GetLogger(module string) *zap.Logger {
	named := f.logger.Named(module)
	return named.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &moduleCore{Core: core, factory: f, module: module}
	}))
}

type moduleCore struct {
	zapcore.Core
	factory *ModuleLoggerFactory
	module  string
}

func (c *moduleCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	name := ent.LoggerName
	if name == "" {
		name = c.module
	}
	if ent.Level == zapcore.DebugLevel && !c.factory.IsDebugEnabled(name) {
		return ce
	}
	if c.Core.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *moduleCore) With(fields []zapcore.Field) zapcore.Core {
	return &moduleCore{Core: c.Core.With(fields), factory: c.factory, module: c.module}
}

// SetDebugModules builds a fresh logger from LogCfg whose Debug output
// is gated per module, the way operators enable targeted tracing
// (--debug-module wire --debug-module cursor) without turning on Debug
// globally.
func SetDebugModules(modules map[string]bool) (*zap.Logger, error) {
	base, err := build(LogCfg, nil)
	if err != nil {
		return nil, err
	}
	factory := NewModuleLoggerFactory(base, false, modules)
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &moduleCore{Core: core, factory: factory, module: ""}
	})), nil
}
