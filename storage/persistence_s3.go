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
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3StoreFactory opens S3-backed SnapshotStores. S3 has no append and no
// directory listing by number, so manifests and sidecars are addressed
// by full object key under Prefix/<db>/...
type S3StoreFactory struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string // custom endpoint for S3-compatible storage (MinIO, etc.)
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
}

func (f *S3StoreFactory) Open(dbName string) SnapshotStore {
	pfx := strings.TrimSuffix(f.Prefix, "/")
	if pfx != "" {
		pfx = pfx + "/" + dbName
	} else {
		pfx = dbName
	}
	return &s3SnapshotStore{factory: f, prefix: pfx}
}

type s3SnapshotStore struct {
	factory *S3StoreFactory
	prefix  string

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

func (s *s3SnapshotStore) ensureOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return
	}
	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if s.factory.Region != "" {
		opts = append(opts, config.WithRegion(s.factory.Region))
	}
	if s.factory.AccessKeyID != "" && s.factory.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.factory.AccessKeyID, s.factory.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		panic(fmt.Sprintf("s3SnapshotStore: failed to load AWS config: %v", err))
	}
	var s3Opts []func(*s3.Options)
	if s.factory.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(s.factory.Endpoint) })
	}
	if s.factory.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	s.client = s3.NewFromConfig(cfg, s3Opts...)
	s.opened = true
}

func (s *s3SnapshotStore) key(rel string) string {
	return s.prefix + "/" + rel
}

func (s *s3SnapshotStore) getObject(key string) ([]byte, error) {
	s.ensureOpen()
	resp, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.factory.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (s *s3SnapshotStore) putObject(key string, data []byte) error {
	s.ensureOpen()
	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.factory.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (s *s3SnapshotStore) WriteManifest(id uint64, data []byte) error {
	// S3 PutObject replaces atomically from the reader's perspective: a
	// GET never observes a partially-written object.
	if err := s.putObject(s.key(strconv.FormatUint(id, 10)+"/manifest.json"), data); err != nil {
		return wrapErr(Io, "WriteManifest", "s3 put manifest", err)
	}
	return nil
}

func (s *s3SnapshotStore) ReadManifest(id uint64) ([]byte, error) {
	data, err := s.getObject(s.key(strconv.FormatUint(id, 10) + "/manifest.json"))
	if err != nil {
		return nil, wrapErr(NotFound, "ReadManifest", fmt.Sprintf("manifest %d", id), err)
	}
	return data, nil
}

func (s *s3SnapshotStore) ListManifestIDs() ([]uint64, error) {
	s.ensureOpen()
	var ids []uint64
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.factory.Bucket),
		Prefix: aws.String(s.prefix + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return nil, wrapErr(Io, "ListManifestIDs", "s3 list", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix+"/")
			parts := strings.SplitN(name, "/", 2)
			if len(parts) == 2 && parts[1] == "manifest.json" {
				if id, err := strconv.ParseUint(parts[0], 10, 64); err == nil {
					ids = append(ids, id)
				}
			}
		}
	}
	return ids, nil
}

func (s *s3SnapshotStore) WriteSidecar(relPath string, data []byte) error {
	if err := s.putObject(s.key(relPath), data); err != nil {
		return wrapErr(Io, "WriteSidecar", "s3 put sidecar "+relPath, err)
	}
	return nil
}

func (s *s3SnapshotStore) ReadSidecar(relPath string) ([]byte, error) {
	data, err := s.getObject(s.key(relPath))
	if err != nil {
		return nil, wrapErr(Corruption, "ReadSidecar", "missing sidecar "+relPath, err)
	}
	return data, nil
}

func (s *s3SnapshotStore) RemoveSidecar(relPath string) error {
	s.ensureOpen()
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.factory.Bucket),
		Key:    aws.String(s.key(relPath)),
	})
	if err != nil {
		return wrapErr(Io, "RemoveSidecar", "s3 delete "+relPath, err)
	}
	return nil
}

func (s *s3SnapshotStore) ListContentFiles() ([]string, error) {
	s.ensureOpen()
	var files []string
	pfx := s.key("memory_contents/")
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.factory.Bucket),
		Prefix: aws.String(pfx),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return nil, wrapErr(Io, "ListContentFiles", "s3 list memory_contents", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix+"/")
			if strings.HasSuffix(name, ".json") {
				files = append(files, name)
			}
		}
	}
	return files, nil
}
