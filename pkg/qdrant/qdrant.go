package qdrant

import (
	"context"

	"github.com/qdrant/go-client/qdrant"
)

type Config struct {
	Host   string `split_words:"true" default:"localhost"`
	Port   int    `split_words:"true" default:"6334"`
	APIKey string `envconfig:"API_KEY"`
	UseTLS bool   `envconfig:"USE_TLS" default:"false"`
}

// New opens a gRPC client and checks the server responds.
func (c *Config) New(ctx context.Context) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   c.Port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, err
	}

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}
