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

// Config carries every tunable the core accepts (spec.md §6). It is the
// struct-of-defaults shape the config loader (out of scope) populates and
// hands to Open.
type Config struct {
	DataPath                  string
	AutoSnapshotInterval      uint // writes between automatic snapshots; 0 disables
	EnablePersistentIndexes   bool
	HnswM                     int
	HnswEfConstruction        int
	HnswEfSearch              int
	HnswSeed                  int64
	VectorDimension           int
	LogFsyncWindowMs          int
	LogBackpressureHighWaterMs int
}

// DefaultConfig mirrors the defaults spelled out in spec.md §6.
func DefaultConfig() Config {
	return Config{
		DataPath:                   "data",
		AutoSnapshotInterval:       0,
		EnablePersistentIndexes:    true,
		HnswM:                      16,
		HnswEfConstruction:         200,
		HnswEfSearch:               50,
		HnswSeed:                   42,
		VectorDimension:            VectorDims,
		LogFsyncWindowMs:           1,
		LogBackpressureHighWaterMs: 250,
	}
}

// Get returns a setting by name, for an external config/CLI layer that
// wants to introspect the running configuration (mirrors the teacher's
// by-name settings dispatch).
func (c Config) Get(name string) (any, bool) {
	switch name {
	case "data_path":
		return c.DataPath, true
	case "auto_snapshot_interval":
		return int64(c.AutoSnapshotInterval), true
	case "enable_persistent_indexes":
		return c.EnablePersistentIndexes, true
	case "hnsw.M":
		return int64(c.HnswM), true
	case "hnsw.ef_construction":
		return int64(c.HnswEfConstruction), true
	case "hnsw.ef_search":
		return int64(c.HnswEfSearch), true
	case "hnsw.seed":
		return c.HnswSeed, true
	case "vector.dimension":
		return int64(c.VectorDimension), true
	case "log.fsync_window_ms":
		return int64(c.LogFsyncWindowMs), true
	case "log.backpressure_high_watermark_ms":
		return int64(c.LogBackpressureHighWaterMs), true
	default:
		return nil, false
	}
}

// Apply sets a setting by name. Returns InvalidInput if the name or value
// type is unrecognized.
func (c *Config) Apply(name string, value any) error {
	switch name {
	case "data_path":
		s, ok := value.(string)
		if !ok {
			return newErr(InvalidInput, "Config.Apply", "data_path expects string")
		}
		c.DataPath = s
	case "auto_snapshot_interval":
		n, ok := toInt(value)
		if !ok {
			return newErr(InvalidInput, "Config.Apply", "auto_snapshot_interval expects int")
		}
		c.AutoSnapshotInterval = uint(n)
	case "enable_persistent_indexes":
		b, ok := value.(bool)
		if !ok {
			return newErr(InvalidInput, "Config.Apply", "enable_persistent_indexes expects bool")
		}
		c.EnablePersistentIndexes = b
	case "hnsw.M":
		n, ok := toInt(value)
		if !ok {
			return newErr(InvalidInput, "Config.Apply", "hnsw.M expects int")
		}
		c.HnswM = n
	case "hnsw.ef_construction":
		n, ok := toInt(value)
		if !ok {
			return newErr(InvalidInput, "Config.Apply", "hnsw.ef_construction expects int")
		}
		c.HnswEfConstruction = n
	case "hnsw.ef_search":
		n, ok := toInt(value)
		if !ok {
			return newErr(InvalidInput, "Config.Apply", "hnsw.ef_search expects int")
		}
		c.HnswEfSearch = n
	case "hnsw.seed":
		n, ok := toInt(value)
		if !ok {
			return newErr(InvalidInput, "Config.Apply", "hnsw.seed expects int")
		}
		c.HnswSeed = int64(n)
	case "log.fsync_window_ms":
		n, ok := toInt(value)
		if !ok {
			return newErr(InvalidInput, "Config.Apply", "log.fsync_window_ms expects int")
		}
		c.LogFsyncWindowMs = n
	case "log.backpressure_high_watermark_ms":
		n, ok := toInt(value)
		if !ok {
			return newErr(InvalidInput, "Config.Apply", "log.backpressure_high_watermark_ms expects int")
		}
		c.LogBackpressureHighWaterMs = n
	default:
		return newErr(InvalidInput, "Config.Apply", "unknown setting: "+name)
	}
	return nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}
