package migrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/sealmail/internal/contract"
	"github.com/dmitrijs2005/sealmail/internal/filex"
)

// DefaultCacheDir is where download-emails stores its files, relative to
// the working directory.
const DefaultCacheDir = "cache/emails"

func cachePath(dir string, id int64) string {
	return filepath.Join(dir, strconv.FormatInt(id, 10)+".json")
}

// Download saves every message of source into dir as <id>.json. Ids that
// already have a file are not fetched again.
func (m *Migrator) Download(ctx context.Context, source contract.Address, dir string) (Stats, error) {
	var st Stats

	logger := m.logger.With("run", uuid.NewString(), "source", source, "dir", dir)

	if _, err := filex.EnsureDir(dir); err != nil {
		return st, err
	}
	v, err := m.SchemaVersion(ctx, source)
	if err != nil {
		return st, fmt.Errorf("source schema version: %w", err)
	}
	last, err := m.LastMessageID(ctx, source)
	if err != nil {
		return st, err
	}

	logger.Info(ctx, "download started", "last_id", last, "source_version", v)

	for id := int64(1); id <= last; id++ {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		path := cachePath(dir, id)
		cached, err := filex.Exists(path)
		if err != nil {
			logger.Error(ctx, "cache check failed", "id", id, "error", err)
			st.Failed++
			continue
		}
		if cached {
			st.Skipped++
			continue
		}

		rec, err := m.Fetch(ctx, source, v, id)
		if errors.Is(err, ErrSkipped) {
			logger.Info(ctx, "nothing to download", "id", id)
			st.Skipped++
			continue
		}
		if err == nil {
			err = writeRecord(path, rec)
		}
		if err != nil {
			logger.Error(ctx, "download failed", "id", id, "error", err)
			st.Failed++
			continue
		}

		logger.Info(ctx, "downloaded", "id", id)
		st.Migrated++
	}

	logger.Info(ctx, "download finished", "stats", st.String())
	return st, nil
}

// UploadDir replays the files written by Download into target, in id
// order, skipping ids the target already holds from a migration.
func (m *Migrator) UploadDir(ctx context.Context, target contract.Address, dir string) (Stats, error) {
	var st Stats

	logger := m.logger.With("run", uuid.NewString(), "target", target, "dir", dir)

	files, err := listCache(dir)
	if err != nil {
		return st, err
	}
	v, err := m.SchemaVersion(ctx, target)
	if err != nil {
		return st, fmt.Errorf("target schema version: %w", err)
	}
	done, err := m.AlreadyMigrated(ctx, target)
	if err != nil {
		return st, err
	}

	logger.Info(ctx, "upload started", "files", len(files), "target_version", v)

	for _, id := range sortedIDs(files) {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if _, ok := done[id]; ok {
			st.Skipped++
			continue
		}

		rec, err := readRecord(files[id])
		if err == nil && rec.ID != id {
			err = fmt.Errorf("file %s holds id %d", files[id], rec.ID)
		}
		if err == nil {
			err = m.Upload(ctx, target, v, rec)
		}
		if err != nil {
			logger.Error(ctx, "upload failed", "id", id, "error", err)
			st.Failed++
			continue
		}

		logger.Info(ctx, "uploaded", "id", id)
		st.Migrated++
	}

	logger.Info(ctx, "upload finished", "stats", st.String())
	return st, nil
}

// listCache maps the ids found in dir to their files. Other files are
// ignored.
func listCache(dir string) (map[int64]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read cache dir: %w", err)
	}
	files := make(map[int64]string, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		files[id] = filepath.Join(dir, name)
	}
	return files, nil
}

func writeRecord(path string, rec *contract.MigrationRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record %d: %w", rec.ID, err)
	}
	return filex.WriteAtomic(path, data, 0o600)
}

func readRecord(path string) (*contract.MigrationRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec contract.MigrationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &rec, nil
}
