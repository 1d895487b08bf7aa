//go:build ceph

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
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/ceph/go-ceph/rados"
)

// CephStoreFactory opens RADOS-object-backed SnapshotStores. Build with
// -tags=ceph; without the tag, see persistence_ceph_stub.go.
type CephStoreFactory struct {
	UserName    string // e.g. "client.memora"
	ClusterName string // often "ceph"
	ConfFile    string // optional ceph.conf path
	Pool        string // RADOS pool name
	Prefix      string // base prefix; joined with the db name
}

func (f *CephStoreFactory) Open(dbName string) SnapshotStore {
	pfx := path.Join(strings.TrimSuffix(f.Prefix, "/"), dbName)
	return &cephSnapshotStore{factory: f, prefix: pfx}
}

type cephSnapshotStore struct {
	factory *CephStoreFactory
	prefix  string

	mu      sync.Mutex
	conn    *rados.Conn
	ioctx   rados.IOContext
	opened  bool
}

func (s *cephSnapshotStore) ensureOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return
	}
	conn, err := rados.NewConnWithUser(s.factory.UserName)
	if err != nil {
		panic(fmt.Sprintf("cephSnapshotStore: NewConnWithUser: %v", err))
	}
	if s.factory.ConfFile != "" {
		if err := conn.ReadConfigFile(s.factory.ConfFile); err != nil {
			panic(fmt.Sprintf("cephSnapshotStore: ReadConfigFile: %v", err))
		}
	} else {
		if err := conn.ReadDefaultConfigFile(); err != nil {
			panic(fmt.Sprintf("cephSnapshotStore: ReadDefaultConfigFile: %v", err))
		}
	}
	if err := conn.Connect(); err != nil {
		panic(fmt.Sprintf("cephSnapshotStore: Connect: %v", err))
	}
	ioctx, err := conn.OpenIOContext(s.factory.Pool)
	if err != nil {
		panic(fmt.Sprintf("cephSnapshotStore: OpenIOContext: %v", err))
	}
	s.conn = conn
	s.ioctx = ioctx
	s.opened = true
}

func (s *cephSnapshotStore) oid(rel string) string {
	return strings.ReplaceAll(path.Join(s.prefix, rel), "/", "_")
}

func (s *cephSnapshotStore) WriteManifest(id uint64, data []byte) error {
	s.ensureOpen()
	oid := s.oid(strconv.FormatUint(id, 10) + "/manifest.json")
	if err := s.ioctx.WriteFull(oid, data); err != nil {
		return wrapErr(Io, "WriteManifest", "rados write "+oid, err)
	}
	return nil
}

func (s *cephSnapshotStore) ReadManifest(id uint64) ([]byte, error) {
	s.ensureOpen()
	oid := s.oid(strconv.FormatUint(id, 10) + "/manifest.json")
	stat, err := s.ioctx.Stat(oid)
	if err != nil {
		return nil, wrapErr(NotFound, "ReadManifest", fmt.Sprintf("manifest %d", id), err)
	}
	buf := make([]byte, stat.Size)
	n, err := s.ioctx.Read(oid, buf, 0)
	if err != nil {
		return nil, wrapErr(Io, "ReadManifest", "rados read "+oid, err)
	}
	return buf[:n], nil
}

func (s *cephSnapshotStore) ListManifestIDs() ([]uint64, error) {
	s.ensureOpen()
	iter, err := s.ioctx.Iter()
	if err != nil {
		return nil, wrapErr(Io, "ListManifestIDs", "rados iter", err)
	}
	defer iter.Close()
	var ids []uint64
	prefix := s.oid("") + "_"
	for iter.Next() {
		name := iter.Value()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, "_manifest.json") {
			continue
		}
		mid := strings.TrimSuffix(strings.TrimPrefix(name, prefix), "_manifest.json")
		if id, err := strconv.ParseUint(mid, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *cephSnapshotStore) WriteSidecar(relPath string, data []byte) error {
	s.ensureOpen()
	oid := s.oid(relPath)
	if err := s.ioctx.WriteFull(oid, data); err != nil {
		return wrapErr(Io, "WriteSidecar", "rados write "+oid, err)
	}
	return nil
}

func (s *cephSnapshotStore) ReadSidecar(relPath string) ([]byte, error) {
	s.ensureOpen()
	oid := s.oid(relPath)
	stat, err := s.ioctx.Stat(oid)
	if err != nil {
		return nil, wrapErr(Corruption, "ReadSidecar", "missing sidecar "+relPath, err)
	}
	buf := make([]byte, stat.Size)
	n, err := s.ioctx.Read(oid, buf, 0)
	if err != nil {
		return nil, wrapErr(Corruption, "ReadSidecar", "rados read "+oid, err)
	}
	return buf[:n], nil
}

func (s *cephSnapshotStore) RemoveSidecar(relPath string) error {
	s.ensureOpen()
	oid := s.oid(relPath)
	if err := s.ioctx.Delete(oid); err != nil {
		return wrapErr(Io, "RemoveSidecar", "rados delete "+oid, err)
	}
	return nil
}

func (s *cephSnapshotStore) ListContentFiles() ([]string, error) {
	s.ensureOpen()
	iter, err := s.ioctx.Iter()
	if err != nil {
		return nil, wrapErr(Io, "ListContentFiles", "rados iter", err)
	}
	defer iter.Close()
	prefix := s.oid("memory_contents_")
	var files []string
	for iter.Next() {
		name := iter.Value()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".json") {
			files = append(files, "memory_contents/"+strings.TrimPrefix(name, prefix))
		}
	}
	return files, nil
}
