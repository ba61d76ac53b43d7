package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	gonanoid "github.com/matoous/go-nanoid/v2"

	cfg "github.com/bachasia/schedy-sub001/configs"
	"github.com/bachasia/schedy-sub001/internal/models"
	"github.com/bachasia/schedy-sub001/internal/repository"
)

type MediaService interface {
	Upload(ctx context.Context, userID int64, fileName string, data []byte) (*models.MediaAsset, error)
	Remove(ctx context.Context, userID, assetID int64) error
}

type mediaService struct {
	config cfg.Config
	ma     repository.MediaAssetRepository
}

func NewMediaService(config cfg.Config, ma repository.MediaAssetRepository) MediaService {
	return &mediaService{config: config, ma: ma}
}

func (m *mediaService) r2Client(ctx context.Context) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(m.config.R2.AccessKey, m.config.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", m.config.R2.AccountID))
	}), nil
}

// Upload sniffs the file type, pushes the bytes to R2, and records the asset.
// Only images and videos are accepted; the publishers pull everything else
// straight from the stored URL.
func (m *mediaService) Upload(ctx context.Context, userID int64, fileName string, data []byte) (*models.MediaAsset, error) {
	kind, err := filetype.Match(data)
	if err != nil {
		return nil, err
	}
	if !filetype.IsImage(data) && !filetype.IsVideo(data) {
		return nil, errors.New("unsupported file type; only images and videos are accepted")
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%d/%s.%s", userID, id, kind.Extension)

	client, err := m.r2Client(ctx)
	if err != nil {
		return nil, err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(m.config.R2.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(kind.MIME.Value),
	}

	if _, err := client.PutObject(ctx, input); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	asset := &models.MediaAsset{
		UserID:   userID,
		FileName: fileName,
		FileType: kind.MIME.Value,
		FileSize: int64(len(data)),
		FileURL:  fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s/%s", m.config.R2.AccountID, m.config.R2.BucketName, key),
	}

	assetID, err := m.ma.Create(ctx, nil, asset)
	if err != nil {
		return nil, err
	}
	asset.ID = assetID

	return asset, nil
}

// Remove deletes an asset row and its R2 object. Posts already published keep
// working; their platform copies were ingested at publish time.
func (m *mediaService) Remove(ctx context.Context, userID, assetID int64) error {
	asset, err := m.ma.GetByID(ctx, assetID)
	if err != nil {
		return err
	}
	if asset == nil || asset.UserID != userID {
		return errors.New("asset not found")
	}

	prefix := fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s/", m.config.R2.AccountID, m.config.R2.BucketName)
	if key, ok := strings.CutPrefix(asset.FileURL, prefix); ok {
		client, err := m.r2Client(ctx)
		if err != nil {
			return err
		}
		input := &s3.DeleteObjectInput{
			Bucket: aws.String(m.config.R2.BucketName),
			Key:    aws.String(key),
		}
		if _, err := client.DeleteObject(ctx, input); err != nil {
			slog.Info(err.Error())
		}
	}

	return m.ma.Remove(ctx, assetID)
}
