package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers the engine.* Lua tables into L:
//
//	engine.log.debug/info/warn/error(msg)  write to the server log
//	engine.town                            the owning town ID
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState, townID string) {
	engine := L.NewTable()
	logger := m.logger.With(zap.String("town", townID))

	log := L.NewTable()
	for name, fn := range map[string]func(string, ...zap.Field){
		"debug": logger.Debug,
		"info":  logger.Info,
		"warn":  logger.Warn,
		"error": logger.Error,
	} {
		write := fn
		L.SetField(log, name, L.NewFunction(func(L *lua.LState) int {
			write("lua: " + L.CheckString(1))
			return 0
		}))
	}
	L.SetField(engine, "log", log)
	L.SetField(engine, "town", lua.LString(townID))
	L.SetGlobal("engine", engine)
}
