// Package backup creates dated, integrity-checked copies of incoming files
// before the pipeline is allowed to move them anywhere.
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kirillkom/docmind/internal/core/domain"
)

// hashChunkSize is the fixed read size for streamed digests.
const hashChunkSize = 1 << 20

// Service copies files into <root>/<ISO-date>/ and records streamed SHA-256
// digests of source and copy.
type Service struct {
	root string
}

func New(root string) *Service {
	return &Service{root: root}
}

// Backup copies path into the dated backup folder, preserving mode and
// modification time. The source digest is computed while copying; the
// backup digest is a read-back of what actually landed on disk.
func (s *Service) Backup(ctx context.Context, path string) (domain.BackupRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.BackupRecord{}, domain.WrapError(domain.ErrNotFound, "stat source", err)
		}
		return domain.BackupRecord{}, domain.WrapError(domain.ErrIO, "stat source", err)
	}

	dateDir := filepath.Join(s.root, time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return domain.BackupRecord{}, domain.WrapError(domain.ErrIO, "create backup dir", err)
	}
	backupPath := filepath.Join(dateDir, filepath.Base(path))

	sourceHash, err := copyWithDigest(ctx, path, backupPath)
	if err != nil {
		return domain.BackupRecord{}, domain.WrapError(domain.ErrIO, "copy to backup", err)
	}
	if err := os.Chmod(backupPath, info.Mode()); err != nil {
		return domain.BackupRecord{}, domain.WrapError(domain.ErrIO, "preserve mode", err)
	}
	if err := os.Chtimes(backupPath, time.Now(), info.ModTime()); err != nil {
		return domain.BackupRecord{}, domain.WrapError(domain.ErrIO, "preserve mtime", err)
	}

	backupHash, err := Hash(ctx, backupPath)
	if err != nil {
		return domain.BackupRecord{}, domain.WrapError(domain.ErrIO, "hash backup", err)
	}

	return domain.BackupRecord{
		SourcePath: path,
		BackupPath: backupPath,
		SourceHash: sourceHash,
		BackupHash: backupHash,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Verify reports whether source and backup digests match.
func (s *Service) Verify(_ context.Context, rec domain.BackupRecord) (bool, error) {
	if rec.SourceHash == "" || rec.BackupHash == "" {
		return false, domain.WrapError(domain.ErrIntegrity, "verify backup", errors.New("missing digest"))
	}
	return rec.SourceHash == rec.BackupHash, nil
}

// Hash computes the streamed SHA-256 digest of a file in fixed chunks.
func Hash(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for hashing: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	buf := make([]byte, hashChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := f.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read for hashing: %w", err)
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func copyWithDigest(ctx context.Context, src, dst string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create backup file: %w", err)
	}
	defer out.Close()

	hasher := sha256.New()
	if _, err := io.Copy(out, io.TeeReader(in, hasher)); err != nil {
		return "", fmt.Errorf("copy: %w", err)
	}
	if err := out.Sync(); err != nil {
		return "", fmt.Errorf("sync backup file: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
