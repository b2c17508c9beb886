package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rsclabs/valve-backend/internal/models"
	"github.com/rsclabs/valve-backend/internal/relay"
)

type Config struct {
	Mode     string
	HTTPAddr string

	DatabaseDriver string
	DatabaseDSN    string

	JWTPublicKey string

	KafkaBrokers      []string
	ConsumerGroup     string
	OnchainTopic      string
	RelayerTopic      string
	DeployedTopic     string
	DeployFailedTopic string
	OutboxInterval    time.Duration

	Relays map[models.Chain]relay.ChainEndpoint
}

func Load() (*Config, error) {
	cfg := &Config{
		Mode:              getEnv("APP_MODE", "dev"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		DatabaseDriver:    getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:       getEnv("DATABASE_DSN", "valve.db"),
		JWTPublicKey:      os.Getenv("JWT_PUBLIC_KEY"),
		KafkaBrokers:      splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		ConsumerGroup:     getEnv("KAFKA_CONSUMER_GROUP", "valve-backend"),
		OnchainTopic:      getEnv("KAFKA_ONCHAIN_TOPIC", "onchain-transactions"),
		RelayerTopic:      getEnv("KAFKA_RELAYER_TOPIC", "relayer-transactions"),
		DeployedTopic:     getEnv("KAFKA_DEPLOYED_TOPIC", "contract-deployed"),
		DeployFailedTopic: getEnv("KAFKA_DEPLOY_FAILED_TOPIC", "contract-deploy-failed"),
		Relays:            map[models.Chain]relay.ChainEndpoint{},
	}

	interval, err := time.ParseDuration(getEnv("OUTBOX_INTERVAL", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid OUTBOX_INTERVAL: %w", err)
	}
	cfg.OutboxInterval = interval

	// relay access is configured per chain, e.g. RELAY_URL_POLYGON; a
	// chain is enabled only when all three variables are present
	for chain := range models.ChainIDs {
		suffix := string(chain)
		endpoint := relay.ChainEndpoint{
			RelayURL: os.Getenv("RELAY_URL_" + suffix),
			APIKey:   os.Getenv("RELAY_API_KEY_" + suffix),
			RPCURL:   os.Getenv("RPC_URL_" + suffix),
		}
		if endpoint.RelayURL != "" && endpoint.APIKey != "" && endpoint.RPCURL != "" {
			cfg.Relays[chain] = endpoint
		}
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
