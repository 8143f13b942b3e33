package app

import (
	"context"
	"fmt"

	"github.com/m3rciful/kitwatch/core/bootstrap"
	coreconfig "github.com/m3rciful/kitwatch/core/config"
	"github.com/m3rciful/kitwatch/core/notify"
)

// RunScan performs one reminder pass outside the bot runtime, as a cron job
// or an operator would.
func RunScan(ctx context.Context, cfg *coreconfig.Config, infra *bootstrap.Result, notifier notify.Notifier) (notify.Report, error) {
	scheduler, err := NewScheduler(cfg, infra, notifier, nil)
	if err != nil {
		return notify.Report{}, err
	}
	report, err := scheduler.RunOnce(ctx)
	if err != nil {
		return report, fmt.Errorf("app: scan: %w", err)
	}
	return report, nil
}
