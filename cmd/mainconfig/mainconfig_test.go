package mainconfig

import (
	"context"
	"testing"

	appconfig "github.com/wolfman30/portfolio-bff/internal/config"
)

func TestLoadAWSConfigStaticCredentials(t *testing.T) {
	cfg := &appconfig.Config{AWSRegion: "us-west-2", AWSAccessKeyID: "test", AWSSecretAccessKey: "secret"}

	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if awsCfg.Region != "us-west-2" {
		t.Fatalf("expected region us-west-2, got %s", awsCfg.Region)
	}
	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "test" {
		t.Fatalf("expected static credentials, got %s", creds.AccessKeyID)
	}

	cfg.AWSEndpointOverride = "http://localstack:4566"
	client := NewS3Client(awsCfg, cfg)
	if client.Options().BaseEndpoint == nil || *client.Options().BaseEndpoint != "http://localstack:4566" {
		t.Fatalf("expected endpoint override")
	}
	if !client.Options().UsePathStyle {
		t.Fatalf("expected path-style addressing with override")
	}
}
