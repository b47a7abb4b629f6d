// Package exporter ships nightly training snapshots to an S3-compatible
// object store: completed assignments with their observed outcomes and the
// day's health events, as gzipped JSONL inside a tar archive.
package exporter

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/fleetops/dispatch/internal/domain"
)

// AssignmentSource supplies recently finished assignments
type AssignmentSource interface {
	CompletedSince(date string) ([]domain.Assignment, error)
}

// HealthSource supplies recent wearable events
type HealthSource interface {
	ListSince(date string) ([]domain.HealthEvent, error)
}

// Config names the export destination. An empty bucket disables the exporter.
type Config struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// Exporter builds and uploads the nightly snapshot
type Exporter struct {
	assignments AssignmentSource
	health      HealthSource
	cfg         Config
	log         zerolog.Logger
}

// New creates the exporter
func New(assignments AssignmentSource, health HealthSource, cfg Config, log zerolog.Logger) *Exporter {
	return &Exporter{
		assignments: assignments,
		health:      health,
		cfg:         cfg,
		log:         log.With().Str("component", "exporter").Logger(),
	}
}

// Enabled reports whether a destination bucket is configured
func (e *Exporter) Enabled() bool {
	return e.cfg.Bucket != ""
}

// Export builds export-YYYY-MM-DD.tar.gz for the current day and uploads it
func (e *Exporter) Export(ctx context.Context) error {
	if !e.Enabled() {
		return nil
	}

	day := domain.OperationalDate(time.Now())
	archive, err := e.buildArchive(day)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("export-%s.tar.gz", day)
	if err := e.upload(ctx, key, archive); err != nil {
		return err
	}

	e.log.Info().
		Str("key", key).
		Int("bytes", archive.Len()).
		Msg("Learning export uploaded")
	return nil
}

// buildArchive assembles a tar of gzipped JSONL files: assignments.jsonl.gz
// and health_events.jsonl.gz.
func (e *Exporter) buildArchive(day string) (*bytes.Buffer, error) {
	assignments, err := e.assignments.CompletedSince(day)
	if err != nil {
		return nil, fmt.Errorf("load completed assignments: %w", err)
	}
	events, err := e.health.ListSince(day)
	if err != nil {
		return nil, fmt.Errorf("load health events: %w", err)
	}

	assignmentLines := make([]interface{}, len(assignments))
	for i := range assignments {
		assignmentLines[i] = assignments[i]
	}
	eventLines := make([]interface{}, len(events))
	for i := range events {
		eventLines[i] = events[i]
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := addJSONLFile(tw, "assignments.jsonl.gz", assignmentLines); err != nil {
		return nil, err
	}
	if err := addJSONLFile(tw, "health_events.jsonl.gz", eventLines); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return &buf, nil
}

func addJSONLFile(tw *tar.Writer, name string, records []interface{}) error {
	var gzBuf bytes.Buffer
	gz := gzip.NewWriter(&gzBuf)
	enc := json.NewEncoder(gz)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode %s record: %w", name, err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("compress %s: %w", name, err)
	}

	header := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(gzBuf.Len()),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}
	if _, err := tw.Write(gzBuf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (e *Exporter) upload(ctx context.Context, key string, body *bytes.Buffer) error {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(e.cfg.Region),
	}
	if e.cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(e.cfg.AccessKey, e.cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if e.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(e.cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	uploader := manager.NewUploader(client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body.Bytes()),
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
