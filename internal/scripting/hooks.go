package scripting

import (
	lua "github.com/yuin/gopher-lua"
)

// Hook names a town script may define.
const (
	HookAreaEnter  = "on_area_enter"
	HookAreaLeave  = "on_area_leave"
	HookGameReward = "game_reward"
)

// AreaEnter calls on_area_enter(area_id, username).
//
// Postcondition: Returns the message to announce and true when the hook
// returned a non-empty string.
func (m *Manager) AreaEnter(townID, areaID, userName string) (string, bool) {
	return m.callMessage(townID, HookAreaEnter, areaID, userName)
}

// AreaLeave calls on_area_leave(area_id, username).
func (m *Manager) AreaLeave(townID, areaID, userName string) (string, bool) {
	return m.callMessage(townID, HookAreaLeave, areaID, userName)
}

func (m *Manager) callMessage(townID, hook, areaID, userName string) (string, bool) {
	ret, err := m.CallHook(townID, hook, lua.LString(areaID), lua.LString(userName))
	if err != nil {
		return "", false
	}
	s, ok := ret.(lua.LString)
	if !ok || s == "" {
		return "", false
	}
	return string(s), true
}

// GameReward calls game_reward(kind, default) and returns the overriding
// amount. A missing hook, a non-number result or a negative number keeps def.
func (m *Manager) GameReward(townID, kind string, def int64) int64 {
	ret, err := m.CallHook(townID, HookGameReward, lua.LString(kind), lua.LNumber(def))
	if err != nil {
		return def
	}
	n, ok := ret.(lua.LNumber)
	if !ok || n < 0 {
		return def
	}
	return int64(n)
}
