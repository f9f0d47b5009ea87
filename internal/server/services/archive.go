package services

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/sheetscan/internal/common"
	"github.com/dmitrijs2005/sheetscan/internal/dbx"
	sc "github.com/dmitrijs2005/sheetscan/internal/server/config"
	"github.com/dmitrijs2005/sheetscan/internal/server/models"
	"github.com/dmitrijs2005/sheetscan/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// ArchiveService copies a merged sheet's images to object storage.
type ArchiveService struct {
	db          dbx.DBTX
	repomanager repomanager.RepositoryManager
	config      *sc.Config
}

func NewArchiveService(db dbx.DBTX, m repomanager.RepositoryManager, config *sc.Config) *ArchiveService {
	return &ArchiveService{db: db, repomanager: m, config: config}
}

// GetRandomStorageKey returns a fresh date-partitioned key prefix.
func GetRandomStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("scans/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *ArchiveService) getS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

// Archive uploads both page images and the composite of scan id, records
// their object keys and advances the scan from Uploading to Syncing.
func (s *ArchiveService) Archive(ctx context.Context, id int64) (*models.Scan, error) {
	repo := s.repomanager.Scans(s.db)

	scan, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if scan.Side != models.SideAB {
		return nil, common.ErrNotMergeable
	}
	if scan.Status != models.StatusUploading {
		return nil, fmt.Errorf("%w: scan is %s", common.ErrInvalidTransition, scan.Status)
	}

	locals := []string{scan.FileA.LocalPath, scan.FileB.LocalPath, scan.PageFilePath}
	for _, local := range locals {
		if local == "" {
			return nil, fmt.Errorf("%w: scan %d is missing a local file", common.ErrNotMergeable, id)
		}
	}

	client, err := s.getS3Client(ctx)
	if err != nil {
		return nil, err
	}

	prefix := GetRandomStorageKey()
	keys := make([]string, len(locals))

	g, gctx := errgroup.WithContext(ctx)
	for i, local := range locals {
		keys[i] = prefix + "/" + filepath.Base(local)
		g.Go(func() error {
			return s.upload(gctx, client, local, keys[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := repo.SetRemotePaths(ctx, id, keys[0], keys[1], keys[2]); err != nil {
		return nil, fmt.Errorf("error saving remote paths: %w", err)
	}
	if err := repo.AdvanceStatus(ctx, id, models.StatusUploading, models.StatusSyncing); err != nil {
		return nil, err
	}

	scan.FileA.RemotePath, scan.FileB.RemotePath, scan.PageRemotePath = keys[0], keys[1], keys[2]
	scan.Status = models.StatusSyncing
	return scan, nil
}

func (s *ArchiveService) upload(ctx context.Context, client *s3.Client, local, key string) error {
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if ct := mime.TypeByExtension(filepath.Ext(local)); ct != "" {
		in.ContentType = aws.String(ct)
	}
	if _, err := putObject(client, ctx, in); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
