package cmd

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	config_aws "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/portal"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/repositories"
)

func openRepository() (*repositories.PostgresDBRepository, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return repositories.NewDBRepository(db, cfg.BatchSize), nil
}

func loadAWSConfig(ctx context.Context) (aws.Config, error) {
	opts := []func(*config_aws.LoadOptions) error{
		config_aws.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSEndpointURL != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:           cfg.AWSEndpointURL,
				SigningRegion: cfg.AWSRegion,
			}, nil
		})
		opts = append(opts, config_aws.WithEndpointResolverWithOptions(resolver))
	}
	if cfg.AWSAccessKeyID != "" {
		opts = append(opts, config_aws.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := config_aws.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return awsCfg, nil
}

func newPortalClient() *portal.Client {
	return portal.NewClient(
		portal.WithBaseURL(cfg.PortalURL),
		portal.WithTimeout(cfg.PortalTimeout),
		portal.WithRequestInterval(cfg.PortalRequestInterval),
		portal.WithLogger(log),
	)
}

func newLiveness() *repositories.RedisLiveness {
	return repositories.NewRedisLiveness(
		repositories.NewRedisClient(cfg.RedisHost, cfg.RedisPort),
		cfg.JobLivenessTTL,
		cfg.JobQueuedTTL,
	)
}
