package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/kitwatch/core/config"
	coretelegram "github.com/m3rciful/kitwatch/core/telegram"
)

type stubApp struct {
	opts coretelegram.RunOptions
}

func (s stubApp) TelegramRunOptions() (coretelegram.RunOptions, error) { return s.opts, nil }

func TestRunWrapsLifecycleHooks(t *testing.T) {
	var events []string
	cfg := &coreconfig.Config{}

	err := Run(Options{
		ConfigPath: "kitwatch.yaml",
		LoadConfig: func(path string) (*coreconfig.Config, error) {
			assert.Equal(t, "kitwatch.yaml", path)
			return cfg, nil
		},
		Bootstrap: func(_ context.Context, got *coreconfig.Config) (TelegramApp, error) {
			assert.Same(t, cfg, got)
			return stubApp{opts: coretelegram.RunOptions{
				OnStart: func(context.Context, coretelegram.Runtime) error { events = append(events, "start"); return nil },
				OnStop:  func(context.Context, coretelegram.Runtime) error { events = append(events, "stop"); return nil },
			}}, nil
		},
		ShutdownLogger: func() error { events = append(events, "logger"); return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			require.NoError(t, opts.OnStart(ctx, coretelegram.Runtime{}))
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "stop", "logger"}, events)
}

func TestRunErrors(t *testing.T) {
	require.Error(t, Run(Options{}))

	err := Run(Options{
		LoadConfig: func(string) (*coreconfig.Config, error) { return nil, errors.New("bad yaml") },
		Bootstrap:  func(context.Context, *coreconfig.Config) (TelegramApp, error) { return nil, nil },
	})
	assert.ErrorContains(t, err, "failed to load config")

	err = Run(Options{
		LoadConfig:     func(string) (*coreconfig.Config, error) { return &coreconfig.Config{}, nil },
		Bootstrap:      func(context.Context, *coreconfig.Config) (TelegramApp, error) { return nil, errors.New("db down") },
		ShutdownLogger: func() error { return nil },
	})
	assert.ErrorContains(t, err, "bootstrap failed")
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "kitwatch dev (local)\n", out.String())
}

func TestCommandTree(t *testing.T) {
	root := NewRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "scan", "version"} {
		assert.True(t, names[want], want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestRootCommandServesByDefault(t *testing.T) {
	root := NewRootCommand()
	require.NotNil(t, root.RunE)

	missing := filepath.Join(t.TempDir(), "missing.yaml")
	root.SetArgs([]string{"--config", missing})
	err := root.Execute()
	assert.ErrorContains(t, err, "failed to load config")

	root = NewRootCommand()
	root.SetArgs([]string{"stray"})
	assert.Error(t, root.Execute())
}
