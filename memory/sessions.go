/*
Copyright (C) 2026  MemCP Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package memory

import "time"

// CreateSession allocates a new session (spec.md §4.6 "create_session").
func (m *Manager) CreateSession(userID, title string) *Session {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	id := m.nextSessionID
	m.nextSessionID++

	now := time.Now()
	s := &Session{
		SessionID:  id,
		UserID:     userID,
		Title:      title,
		CreatedAt:  now,
		LastActive: now,
		IsActive:   true,
	}
	m.sessions[id] = s
	m.sessionIDs.ReplaceOrInsert(id)
	return s
}

// SetCurrentSession marks sessionID as the active session for
// subsequent stores that don't specify one explicitly.
func (m *Manager) SetCurrentSession(sessionID uint64) bool {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return false
	}
	m.currentSessionID = sessionID
	m.hasCurrentSession = true
	return true
}

// GetCurrentSession returns the active session, if one is set.
func (m *Manager) GetCurrentSession() (*Session, bool) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	if !m.hasCurrentSession {
		return nil, false
	}
	s, ok := m.sessions[m.currentSessionID]
	return s, ok
}

// GetSession looks up a session by id.
func (m *Manager) GetSession(id uint64) (*Session, bool) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// touchSession bumps LastActive/InteractionCount on a known session
// (spec.md §3 "last_active touched by inserts that carry its id").
// Unknown session ids are silently ignored: a caller-supplied session_id
// that doesn't exist is not treated as an error by the store/forget path.
func (m *Manager) touchSession(id uint64) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.touch(time.Now())
	}
}

// ListSessionIDs returns every session id in ascending order, via the
// sorted btree index kept alongside the session map.
func (m *Manager) ListSessionIDs() []uint64 {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	ids := make([]uint64, 0, m.sessionIDs.Len())
	m.sessionIDs.Ascend(func(id uint64) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// sessionCount returns (active, total) session counts for statistics.
func (m *Manager) sessionCount() (active, total int) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	total = len(m.sessions)
	for _, s := range m.sessions {
		if s.IsActive {
			active++
		}
	}
	return
}
