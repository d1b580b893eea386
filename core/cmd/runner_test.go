package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/cardshop/core/config"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type fakeApp struct {
	serveErr error
	closed   bool
}

func (a *fakeApp) Serve(context.Context) error { return a.serveErr }
func (a *fakeApp) Close() error               { a.closed = true; return nil }

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("CARDSHOP_TEST_CONFIG", "/etc/from-env.yaml")

	p, err := ResolveConfigPath(Options{ConfigPath: "/explicit.yaml", ConfigEnvVar: "CARDSHOP_TEST_CONFIG"})
	require.NoError(t, err)
	assert.Equal(t, "/explicit.yaml", p)

	p, err = ResolveConfigPath(Options{ConfigEnvVar: "CARDSHOP_TEST_CONFIG", DefaultConfigPath: "config.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "/etc/from-env.yaml", p)

	p, err = ResolveConfigPath(Options{ConfigEnvVar: "CARDSHOP_TEST_UNSET", DefaultConfigPath: "config.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", p)

	_, err = ResolveConfigPath(Options{ConfigEnvVar: "CARDSHOP_TEST_UNSET"})
	require.Error(t, err)
}

func TestRunServesAndCloses(t *testing.T) {
	app := &fakeApp{serveErr: errors.New("listener died")}
	loggerClosed := false
	err := Run(Options{
		ConfigPath: "config.yaml",
		LoadConfig: func(string) (ConfigCarrier, error) { return carrier{cfg: &coreconfig.Config{}}, nil },
		Bootstrap:  func(ConfigCarrier) (App, error) { return app, nil },
		ShutdownLogger: func() error {
			loggerClosed = true
			return nil
		},
	})
	require.ErrorContains(t, err, "listener died")
	assert.True(t, app.closed)
	assert.True(t, loggerClosed)
}

func TestRunRequiresCoreConfig(t *testing.T) {
	err := Run(Options{
		ConfigPath: "config.yaml",
		LoadConfig: func(string) (ConfigCarrier, error) { return carrier{}, nil },
		Bootstrap:  func(ConfigCarrier) (App, error) { return &fakeApp{}, nil },
	})
	require.ErrorContains(t, err, "missing core configuration")
}
