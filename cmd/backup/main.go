package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"citnet/config"
	"citnet/storage"
)

type BackupConfig struct {
	Prefix      string `envconfig:"BACKUP_S3_PREFIX" default:"backups"`
	KeepBackups int    `envconfig:"KEEP_BACKUPS" default:"4"`
}

// backupClient is the part of the S3 API used for upload and rotation.
type backupClient interface {
	storage.ObjectPutter
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

func main() {
	log.Println("Starte Backup-Prozess...")
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Fehler beim Laden der Konfiguration: %v", err)
	}
	var bcfg BackupConfig
	if err := envconfig.Process("", &bcfg); err != nil {
		log.Fatalf("Fehler beim Laden der Backup-Konfiguration: %v", err)
	}

	// 1. Datenbank-Dump erstellen
	dumpData, ext, err := createDump(ctx, cfg)
	if err != nil {
		log.Fatalf("Fehler beim Erstellen des DB-Dumps: %v", err)
	}

	// 2. S3-Client erstellen
	s3Client, err := storage.NewS3Client(ctx, cfg)
	if err != nil {
		log.Fatalf("Fehler beim Erstellen des S3-Clients: %v", err)
	}

	// 3. Backup nach S3 hochladen
	key := backupKey(bcfg.Prefix, ext, time.Now())
	link, err := storage.UploadFile(ctx, s3Client, cfg, key, dumpData, "application/gzip")
	if err != nil {
		log.Fatalf("Fehler beim Hochladen nach S3: %v", err)
	}
	log.Printf("Backup erfolgreich nach %s hochgeladen", link)

	// 4. Alte Backups rotieren
	if err := rotateBackups(ctx, s3Client, cfg.S3Bucket, bcfg); err != nil {
		log.Fatalf("Fehler bei der Rotation alter Backups: %v", err)
	}

	log.Println("Backup-Prozess erfolgreich abgeschlossen.")
}

func backupKey(prefix, ext string, now time.Time) string {
	return path.Join(prefix, fmt.Sprintf("backup-%s.%s.gz", now.UTC().Format("2006-01-02T15-04-05Z"), ext))
}

// createDump snapshots SQLite with VACUUM INTO and PostgreSQL with pg_dump.
func createDump(ctx context.Context, cfg *config.Config) ([]byte, string, error) {
	if cfg.DBDriver == "postgres" {
		data, err := pgDump(ctx, cfg)
		return data, "sql", err
	}

	store, err := storage.Open(cfg, zap.NewNop())
	if err != nil {
		return nil, "", err
	}
	defer store.Close()

	dir, err := os.MkdirTemp("", "citnet-backup-")
	if err != nil {
		return nil, "", err
	}
	defer os.RemoveAll(dir)
	snapshot := filepath.Join(dir, "citnet.db")
	if err := store.Snapshot(ctx, snapshot); err != nil {
		return nil, "", err
	}
	f, err := os.Open(snapshot)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	data, err := gzipStream(f)
	return data, "db", err
}

func pgDump(ctx context.Context, cfg *config.Config) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "pg_dump",
		"-h", cfg.DBHost,
		"-p", fmt.Sprint(cfg.DBPort),
		"-U", cfg.DBUser,
		"-d", cfg.DBName,
		"-w", // Passwort wird über PGPASSWORD bereitgestellt
	)
	cmd.Env = append(os.Environ(), fmt.Sprintf("PGPASSWORD=%s", cfg.DBPassword))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	data, err := gzipStream(stdout)
	if err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, err
	}
	return data, nil
}

func gzipStream(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if _, err := io.Copy(gzipWriter, r); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rotateBackups keeps the newest KeepBackups objects under the backup prefix.
func rotateBackups(ctx context.Context, client backupClient, bucket string, cfg BackupConfig) error {
	prefix := strings.TrimSuffix(cfg.Prefix, "/") + "/backup-"
	output, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return err
	}

	if len(output.Contents) <= cfg.KeepBackups {
		log.Printf("Weniger als %d Backups vorhanden, keine Rotation nötig.", cfg.KeepBackups)
		return nil
	}

	sort.Slice(output.Contents, func(i, j int) bool {
		return output.Contents[i].LastModified.After(*output.Contents[j].LastModified)
	})

	for _, obj := range output.Contents[cfg.KeepBackups:] {
		log.Printf("Lösche altes Backup: %s", *obj.Key)
		_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    obj.Key,
		})
		if err != nil {
			log.Printf("Fehler beim Löschen von %s: %v", *obj.Key, err)
		}
	}

	return nil
}
