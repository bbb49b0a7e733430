package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/database"
)

const snapshotPrefix = "registry/"

// uploadTimeout bounds one snapshot upload end to end
const uploadTimeout = 5 * time.Minute

// BackupService snapshots the registry database and rotates uploads
type BackupService struct {
	db        *database.DB
	store     *S3Client
	keepCount int
	log       zerolog.Logger
}

// NewBackupService creates the backup service
func NewBackupService(db *database.DB, store *S3Client, keepCount int, log zerolog.Logger) *BackupService {
	if keepCount < 1 {
		keepCount = 3
	}
	return &BackupService{
		db:        db,
		store:     store,
		keepCount: keepCount,
		log:       log.With().Str("component", "backup").Logger(),
	}
}

// Run takes one consistent snapshot, uploads it, and rotates old ones.
// The snapshot is taken online with VACUUM INTO; the live database keeps
// serving throughout.
func (s *BackupService) Run(ctx context.Context) error {
	started := time.Now()

	workDir, err := os.MkdirTemp("", "astrolabe-backup-*")
	if err != nil {
		return fmt.Errorf("failed to create backup workspace: %w", err)
	}
	defer os.RemoveAll(workDir)

	snapshotPath := filepath.Join(workDir, "registry.db")
	if err := s.db.SnapshotTo(snapshotPath); err != nil {
		return err
	}

	archivePath := snapshotPath + ".tar.gz"
	if err := compressFile(snapshotPath, archivePath); err != nil {
		return err
	}

	key := fmt.Sprintf("%sregistry-%s.db.tar.gz", snapshotPrefix, started.UTC().Format("20060102T150405"))

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	if err := s.store.Upload(uploadCtx, key, f); err != nil {
		return err
	}

	s.log.Info().
		Str("key", key).
		Dur("took", time.Since(started)).
		Msg("Registry snapshot uploaded")

	if err := s.rotate(ctx); err != nil {
		// The snapshot itself succeeded; rotation can catch up next run
		s.log.Warn().Err(err).Msg("Snapshot rotation failed")
	}
	return nil
}

// rotate deletes all but the newest keepCount snapshots. Keys embed a
// sortable timestamp, so lexicographic order is chronological.
func (s *BackupService) rotate(ctx context.Context) error {
	keys, err := s.store.List(ctx, snapshotPrefix)
	if err != nil {
		return err
	}
	if len(keys) <= s.keepCount {
		return nil
	}

	for _, key := range keys[:len(keys)-s.keepCount] {
		if err := s.store.Delete(ctx, key); err != nil {
			return err
		}
		s.log.Debug().Str("key", key).Msg("Rotated old snapshot")
	}
	return nil
}

// compressFile writes src into a single-entry tar.gz archive
func compressFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat snapshot: %w", err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	if err := tw.WriteHeader(&tar.Header{
		Name:    filepath.Base(src),
		Mode:    0644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}); err != nil {
		return fmt.Errorf("failed to write archive header: %w", err)
	}
	if _, err := io.Copy(tw, in); err != nil {
		return fmt.Errorf("failed to write archive body: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finalize compression: %w", err)
	}
	return nil
}

// BackupJob adapts the backup service to the scheduler
type BackupJob struct {
	service *BackupService
}

// NewBackupJob creates the scheduled backup job
func NewBackupJob(service *BackupService) *BackupJob {
	return &BackupJob{service: service}
}

// Name returns the job name
func (j *BackupJob) Name() string { return "registry_backup" }

// Run takes and uploads one snapshot
func (j *BackupJob) Run() error {
	return j.service.Run(context.Background())
}
