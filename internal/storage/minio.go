package storage

import (
	"context"
	"fmt"
	"strings"

	"recruit-desk/internal/config"
	"recruit-desk/internal/logger"
	"recruit-desk/internal/tracing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var minioTracer = otel.Tracer("recruit-desk/storage/minio")

// MinIO 转写文本的对象存储
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	bucket string
	log    zerolog.Logger
}

// NewMinIO 创建MinIO客户端，确保转写存储桶存在并设置生命周期
func NewMinIO(cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	log := logger.Component("minio")
	log.Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.TranscriptsBucket).Msg("初始化MinIO客户端")

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client: client,
		cfg:    cfg,
		bucket: cfg.TranscriptsBucket,
		log:    log,
	}

	ctx := context.Background()
	if err := m.ensureBucketExists(ctx, m.bucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保转写存储桶 %s 存在失败: %w", m.bucket, err)
	}

	if cfg.TranscriptExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.bucket, "expire-transcripts", cfg.TranscriptExpireDays); err != nil {
			// 生命周期不是必需的，失败只告警
			log.Warn().Err(err).Msg("设置转写存储桶生命周期失败")
		}
	}
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(ctx context.Context, bucketName, location string) error {
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
	}
	m.log.Info().Str("bucket", bucketName).Msg("存储桶已创建")
	return nil
}

// setupBucketLifecycle 为指定存储桶设置过期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, cfg)
}

// TranscriptObjectName 转写文本的对象键: {applicantId}/{meetingId}.txt
func TranscriptObjectName(applicantID, meetingID string) string {
	return fmt.Sprintf("%s/%s.txt", applicantID, meetingID)
}

// PutTranscript 归档一份转写文本，返回 bucket/object 路径。
// 同一场会议重复归档会覆盖旧对象。
func (m *MinIO) PutTranscript(ctx context.Context, applicantID, meetingID, text string) (string, error) {
	objectName := TranscriptObjectName(applicantID, meetingID)

	ctx, span := minioTracer.Start(ctx, "MinIO.PutTranscript", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("object_store.bucket", m.bucket),
		attribute.String("object_store.key", objectName),
		attribute.Int("object_store.size", len(text)),
	)

	info, err := m.client.PutObject(ctx, m.bucket, objectName, strings.NewReader(text), int64(len(text)),
		minio.PutObjectOptions{
			ContentType:  "text/plain; charset=utf-8",
			UserMetadata: map[string]string{"applicant-id": applicantID, "meeting-id": meetingID},
		})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return "", fmt.Errorf("上传转写 %s/%s 失败: %w", m.bucket, objectName, err)
	}
	span.SetAttributes(attribute.String("object_store.etag", info.ETag))
	m.log.Debug().Str("object", objectName).Int("size", len(text)).Msg("转写已归档")
	return m.bucket + "/" + objectName, nil
}
