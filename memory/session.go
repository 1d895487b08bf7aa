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

// Session groups memories sharing a conversation context and user
// (spec.md §3, glossary "Session").
type Session struct {
	SessionID        uint64
	UserID           string
	Title            string
	Context          [256]byte
	CreatedAt        time.Time
	LastActive       time.Time
	InteractionCount uint64
	IsActive         bool
}

// touch records activity on the session: bumps LastActive and the
// interaction counter. Called whenever an insert carries this session's
// id (spec.md §3 "last_active touched by inserts that carry its id"),
// including a forget_memory on a session-bound memory (SPEC_FULL.md §C).
func (s *Session) touch(now time.Time) {
	s.LastActive = now
	s.InteractionCount++
}
