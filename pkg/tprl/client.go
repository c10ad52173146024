// Package tprl creates Temporal clients configured from the environment.
package tprl

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"

	"github.com/casualjim/weft/pkg/slogx"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
)

// NewClient creates a lazy client for TEMPORAL_ADDRESS and
// TEMPORAL_NAMESPACE, falling back to the SDK defaults. Nothing is dialed
// until the first call.
func NewClient() (client.Client, error) {
	lg := slog.Default().With(slogx.LoggerName("weft.temporal"))

	cl, err := client.NewLazyClient(client.Options{
		HostPort:  cmp.Or(os.Getenv("TEMPORAL_ADDRESS"), client.DefaultHostPort),
		Namespace: cmp.Or(os.Getenv("TEMPORAL_NAMESPACE"), client.DefaultNamespace),
		Logger:    log.NewStructuredLogger(lg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create temporal client: %w", err)
	}
	return cl, nil
}
