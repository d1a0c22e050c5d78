// Package source builds the demand data source selected by configuration.
package source

import (
	"fmt"
	"log/slog"

	"github.com/supplylink/supplylink-ml/internal/config"
	"github.com/supplylink/supplylink-ml/pkg/adapters"
	"github.com/supplylink/supplylink-ml/pkg/httpx"
)

// New creates the data source described by cfg. HTTP sources get a client
// carrying the source TLS settings and the training timeout.
func New(cfg *config.Config, logger *slog.Logger) (adapters.Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	src, err := adapters.New(cfg.Source, cfg.AdapterConfig)
	if err != nil {
		return nil, fmt.Errorf("create %s source: %w", cfg.Source, err)
	}

	if hs, ok := src.(*adapters.HTTPSource); ok {
		client, err := httpx.NewClient(cfg.SourceTLS, cfg.TrainTimeout)
		if err != nil {
			return nil, fmt.Errorf("create http source client: %w", err)
		}
		hs.HTTPClient = client
		logger.Info("using http demand source", "url", hs.URL, "method", hs.Method, "tls", cfg.SourceTLS.Enabled)
		return hs, nil
	}

	logger.Info("using demand source", "source", src.Name())
	return src, nil
}
