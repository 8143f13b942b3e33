package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"

	coreconfig "github.com/m3rciful/kitwatch/core/config"
)

func middlewareNames(mws []Middleware) []string {
	names := make([]string, 0, len(mws))
	for _, mw := range mws {
		names = append(names, mw.Name)
	}
	return names
}

func TestDefaultMiddlewares(t *testing.T) {
	assert.Equal(t, []string{"logger", "recover", "metrics"}, middlewareNames(DefaultMiddlewares(nil, nil)))

	cfg := &coreconfig.Config{}
	cfg.RateLimit.IntervalMS = 500
	cfg.RateLimit.ExcludeUpdates = []string{"callback"}
	assert.Equal(t, []string{"logger", "recover", "rate_limit", "metrics"}, middlewareNames(DefaultMiddlewares(cfg, nil)))
}
