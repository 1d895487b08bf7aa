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

import "github.com/memora-db/memora/storage"

// A memory node's 32-byte label is overloaded (spec.md §3): the first
// three bytes carry {memory_type, confidence, importance}, the rest a
// truncated display label.
const labelMetaSize = 3

func encodeMemoryLabel(t Type, c Confidence, imp Importance, display string) [storage.LabelSize]byte {
	var label [storage.LabelSize]byte
	label[0] = byte(t)
	label[1] = byte(c)
	label[2] = byte(imp)
	copy(label[labelMetaSize:], display)
	return label
}

func decodeMemoryLabel(label [storage.LabelSize]byte) (Type, Confidence, Importance, string) {
	t := Type(label[0])
	c := Confidence(label[1])
	imp := Importance(label[2])
	end := labelMetaSize
	for end < storage.LabelSize && label[end] != 0 {
		end++
	}
	return t, c, imp, string(label[labelMetaSize:end])
}

func truncateDisplay(content string) string {
	max := storage.LabelSize - labelMetaSize
	if len(content) <= max {
		return content
	}
	return content[:max]
}
