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
package storage

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"sync"
	"time"
)

// frameHeaderSize is [u32 length][u8 kind][u64 seq].
const frameHeaderSize = 4 + 1 + 8
const frameTrailerSize = 4 // crc32

// RawEntry is one decoded frame from the append log.
type RawEntry struct {
	Seq     uint64
	Kind    byte
	Payload []byte
}

// AppendLog is the crash-safe, append-only, checksummed sequence of log
// entries described in spec.md §4.1. Frame format:
//
//	[u32 length][u8 kind][u64 seq][payload][u32 crc32(payload)]
//
// Writes are buffered and flushed on every append; fsync is invoked
// either on an explicit barrier or once LogFsyncWindowMs has elapsed
// since the last sync, whichever the caller hits first.
type AppendLog struct {
	mu          sync.Mutex
	f           *os.File
	path        string
	nextSeq     uint64
	fsyncWindow time.Duration
	lastSync    time.Time
	corrupt     bool
}

// OpenAppendLog opens (creating if absent) the log file at path, replays
// every well-formed frame it contains, and returns the log ready for
// further appends plus the replayed entries in sequence order.
//
// A truncated or bad-CRC frame at the tail is silently skipped and the
// file is truncated to the last good frame boundary (spec.md §4.1). A
// bad-CRC frame that is NOT at the tail (more well-formed frames follow
// it) is a *Corruption error: the log refuses to load silently over
// interior damage.
func OpenAppendLog(path string, fsyncWindowMs int) (*AppendLog, []RawEntry, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0640)
	if err != nil {
		return nil, nil, wrapErr(Io, "OpenAppendLog", "opening log file", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		f.Close()
		return nil, nil, wrapErr(Io, "OpenAppendLog", "reading log file", err)
	}

	entries, goodLength, corruptErr := scanFrames(data)
	if corruptErr != nil {
		f.Close()
		return nil, nil, corruptErr
	}
	if goodLength < int64(len(data)) {
		fmt.Println("walog: truncating", path, "to last good frame at offset", goodLength)
		if err := f.Truncate(goodLength); err != nil {
			f.Close()
			return nil, nil, wrapErr(Io, "OpenAppendLog", "truncating corrupt tail", err)
		}
	}
	if _, err := f.Seek(goodLength, 0); err != nil {
		f.Close()
		return nil, nil, wrapErr(Io, "OpenAppendLog", "seeking to log tail", err)
	}

	var nextSeq uint64 = 1
	if len(entries) > 0 {
		nextSeq = entries[len(entries)-1].Seq + 1
	}

	l := &AppendLog{
		f:           f,
		path:        path,
		nextSeq:     nextSeq,
		fsyncWindow: time.Duration(fsyncWindowMs) * time.Millisecond,
		lastSync:    time.Now(),
	}
	return l, entries, nil
}

// scanFrames walks the raw bytes of a log file, decoding every frame it
// can. It returns the decoded entries, the byte offset of the last good
// frame boundary, and a Corruption error if an interior frame's CRC does
// not match (i.e. well-formed frames exist beyond the bad one).
func scanFrames(data []byte) ([]RawEntry, int64, error) {
	var entries []RawEntry
	offset := 0
	lastGood := 0
	for {
		if offset+frameHeaderSize > len(data) {
			break // truncated tail: not enough bytes for a header
		}
		length := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		kind := data[offset+4]
		seq := binary.LittleEndian.Uint64(data[offset+5 : offset+13])
		total := frameHeaderSize + length + frameTrailerSize
		if offset+total > len(data) {
			break // truncated tail: payload or crc cut off
		}
		payload := data[offset+frameHeaderSize : offset+frameHeaderSize+length]
		wantCrc := binary.LittleEndian.Uint32(data[offset+frameHeaderSize+length : offset+total])
		gotCrc := crc32.ChecksumIEEE(payload)
		if gotCrc != wantCrc {
			// Is this the tail, or is there more well-formed log after it?
			if hasWellFormedFrameAfter(data, offset+total) {
				return nil, 0, newErr(Corruption, "OpenAppendLog",
					fmt.Sprintf("interior CRC mismatch at offset %d (seq %d)", offset, seq))
			}
			break // tail corruption: stop here, truncate
		}
		entries = append(entries, RawEntry{Seq: seq, Kind: kind, Payload: payload})
		offset += total
		lastGood = offset
	}
	return entries, int64(lastGood), nil
}

// hasWellFormedFrameAfter checks whether a complete, CRC-valid frame
// exists anywhere in data[from:], used to distinguish a truncated tail
// from genuine interior corruption.
func hasWellFormedFrameAfter(data []byte, from int) bool {
	for offset := from; offset+frameHeaderSize <= len(data); offset++ {
		length := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		if length < 0 || length > len(data) {
			continue
		}
		total := frameHeaderSize + length + frameTrailerSize
		if offset+total > len(data) {
			continue
		}
		payload := data[offset+frameHeaderSize : offset+frameHeaderSize+length]
		wantCrc := binary.LittleEndian.Uint32(data[offset+frameHeaderSize+length : offset+total])
		if crc32.ChecksumIEEE(payload) == wantCrc {
			return true
		}
	}
	return false
}

// Append writes one framed entry and returns its assigned sequence
// number. The frame is flushed to the OS immediately; fsync to disk
// follows the batching window described on AppendLog.
func (l *AppendLog) Append(kind byte, payload []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.corrupt {
		return 0, newErr(Corruption, "Append", "log previously marked corrupt; refusing further writes")
	}

	seq := l.nextSeq
	frame := make([]byte, frameHeaderSize+len(payload)+frameTrailerSize)
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(payload)))
	frame[4] = kind
	binary.LittleEndian.PutUint64(frame[5:13], seq)
	copy(frame[frameHeaderSize:], payload)
	crc := crc32.ChecksumIEEE(payload)
	binary.LittleEndian.PutUint32(frame[frameHeaderSize+len(payload):], crc)

	if _, err := l.f.Write(frame); err != nil {
		return 0, wrapErr(Io, "Append", "writing log frame", err)
	}
	l.nextSeq++

	if time.Since(l.lastSync) >= l.fsyncWindow {
		if err := l.f.Sync(); err != nil {
			return 0, wrapErr(Io, "Append", "fsync after write", err)
		}
		l.lastSync = time.Now()
	}
	return seq, nil
}

// Fsync forces a durability barrier: every previously buffered write is
// guaranteed to be on disk when this returns. Required after every
// externally acknowledged write that demands durability (snapshot
// creation, a caller-requested barrier).
func (l *AppendLog) Fsync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.f.Sync(); err != nil {
		return wrapErr(Io, "Fsync", "fsync", err)
	}
	l.lastSync = time.Now()
	return nil
}

// Iterator returns every entry currently on disk, in sequence order.
func (l *AppendLog) Iterator() ([]RawEntry, error) {
	return l.TailAfter(0)
}

// TailAfter returns every entry with Seq > seq, in sequence order. Used
// (through Database.LogTailAfter) by the memory manager to replay
// memory_content entries newer than its recovery point. An interior CRC
// mismatch found here marks the log corrupt, so later appends fail.
func (l *AppendLog) TailAfter(seq uint64) ([]RawEntry, error) {
	l.mu.Lock()
	path := l.path
	l.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapErr(Io, "TailAfter", "reading log for replay", err)
	}
	entries, _, err := scanFrames(data)
	if err != nil {
		l.MarkCorrupt()
		return nil, err
	}
	var out []RawEntry
	for _, e := range entries {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out, nil
}

// LastSeq returns the sequence number of the most recently appended
// entry, or 0 if the log is empty.
func (l *AppendLog) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextSeq - 1
}

// Stat returns the current on-disk size of the log file in bytes.
func (l *AppendLog) Stat() (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	info, err := l.f.Stat()
	if err != nil {
		return 0, wrapErr(Io, "Stat", "stat log file", err)
	}
	return info.Size(), nil
}

// MarkCorrupt refuses all further writes. Called when an outer component
// detects interior corruption it cannot recover from on its own.
func (l *AppendLog) MarkCorrupt() {
	l.mu.Lock()
	l.corrupt = true
	l.mu.Unlock()
}

// Close flushes and closes the underlying file handle.
func (l *AppendLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.f.Sync(); err != nil {
		l.f.Close()
		return wrapErr(Io, "Close", "fsync on close", err)
	}
	return l.f.Close()
}
