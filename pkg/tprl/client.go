package tprl

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/casualjim/strix/pkg/slogx"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
)

func envStrOrDefault(key string, def string) string {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	return s
}

// Options returns client options built from TEMPORAL_ADDRESS and
// TEMPORAL_NAMESPACE, logging through slog.
func Options() client.Options {
	lg := slog.Default().With(slogx.LoggerName("strix.temporal"))
	return client.Options{
		HostPort:  envStrOrDefault("TEMPORAL_ADDRESS", client.DefaultHostPort),
		Namespace: envStrOrDefault("TEMPORAL_NAMESPACE", client.DefaultNamespace),
		Logger:    log.NewStructuredLogger(lg),
	}
}

// NewClient creates a lazy Temporal client; no connection is made until first use.
func NewClient() (client.Client, error) {
	cl, err := client.NewLazyClient(Options())
	if err != nil {
		return nil, fmt.Errorf("failed to create temporal client: %w", err)
	}
	return cl, nil
}
