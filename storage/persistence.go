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

/*

snapshot persistence interface

Memora allows multiple storage backends for snapshot manifests and
sidecar files:
 - file system: in <data_path>/<db>/snapshots/...
 - S3-compatible object storage
 - Ceph/RADOS (build tag `ceph`)

A backend must implement:
 - atomic write / read of a manifest by snapshot id
 - list all manifest ids present
 - write / read an arbitrary sidecar file by relative path
 - list the shared content-blob directory (for orphan scanning)
 - remove a sidecar (used only by optional compaction)

*/

// SnapshotStore is the persistence interface the Snapshot Manager drives.
// Implementations must make WriteManifest atomic (write-to-temp +
// rename, or the object-storage equivalent of replace-on-success) since
// a partial manifest must never be observable by ReadManifest.
type SnapshotStore interface {
	WriteManifest(id uint64, data []byte) error
	ReadManifest(id uint64) ([]byte, error)
	ListManifestIDs() ([]uint64, error)

	WriteSidecar(relPath string, data []byte) error
	ReadSidecar(relPath string) ([]byte, error)
	RemoveSidecar(relPath string) error

	// ListContentFiles enumerates every file currently under the shared
	// memory_contents/ directory, used for orphan recovery.
	ListContentFiles() ([]string, error)
}

// SnapshotStoreFactory opens (or creates) the SnapshotStore for a named
// database, mirroring the teacher's PersistenceFactory.CreateDatabase.
type SnapshotStoreFactory interface {
	Open(dbName string) SnapshotStore
}
