package app

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/cardshop/core/config"
	"github.com/m3rciful/cardshop/core/telegram"
)

type inbox struct {
	mu   sync.Mutex
	msgs []telegram.Message
}

func (b *inbox) Send(_ context.Context, msg telegram.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
	return nil
}

func (b *inbox) all() []telegram.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]telegram.Message(nil), b.msgs...)
}

func testConfig() *Config {
	return &Config{
		Config: coreconfig.Config{
			Telegram: coreconfig.TelegramConfig{
				UserBot:  coreconfig.BotConfig{Token: "user-token", Secret: "user-secret"},
				AdminBot: coreconfig.BotConfig{Token: "admin-token", Secret: "admin-secret"},
				AdminID:  42,
				Offline:  true,
			},
		},
		Storage: StorageConfig{Backend: BackendMemory},
		Catalog: []CategorySeed{
			{ID: "steam", Name: "Steam 20", Price: "20.00", DeliveryType: "code", Codes: []string{"AAA", "BBB"}},
			{ID: "mobile", Name: "Mobile 5", Price: "5", DeliveryType: "phone"},
		},
	}
}

func noLogger(*coreconfig.Config) error { return nil }

func newTestApp(t *testing.T, cfg *Config, ov Overrides) (*App, *inbox, *inbox) {
	t.Helper()
	require.NoError(t, Normalize(cfg))
	user, admin := &inbox{}, &inbox{}
	ov.LoggerInit = noLogger
	ov.UserMessenger = user
	ov.AdminMessenger = admin
	a, err := New(context.Background(), cfg, ov)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, user, admin
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const startUpdate = `{"update_id":1,"message":{"message_id":1,"text":"/start","from":{"id":7,"first_name":"Ann"},"chat":{"id":7,"type":"private"}}}`

func TestStartThroughWebhook(t *testing.T) {
	a, user, _ := newTestApp(t, testConfig(), Overrides{})

	rec := post(t, a.Handler(), telegram.WebhookPath("user", "user-secret"), startUpdate)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool { return len(user.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	msg := user.all()[0]
	assert.Equal(t, int64(7), msg.ChatID)
	assert.Contains(t, msg.Text, "Welcome")
	assert.Contains(t, msg.Text, "Card Shop")
	require.NotNil(t, msg.Markup)
}

func TestWrongSecretIsForbidden(t *testing.T) {
	a, user, _ := newTestApp(t, testConfig(), Overrides{})

	rec := post(t, a.Handler(), telegram.WebhookPath("user", "admin-secret"), startUpdate)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, user.all())
}

func TestNonAdminOnAdminBotGetsNoReply(t *testing.T) {
	a, _, admin := newTestApp(t, testConfig(), Overrides{})

	rec := post(t, a.Handler(), telegram.WebhookPath("admin", "admin-secret"), startUpdate)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `cardshop_gate_suppressed_total{bot="admin",reason="not_admin"} 1`)
	assert.Empty(t, admin.all())
}

func TestCatalogSeededIntoMemoryStore(t *testing.T) {
	a, user, _ := newTestApp(t, testConfig(), Overrides{})

	body := `{"update_id":2,"callback_query":{"id":"q","data":"browse_products","from":{"id":8,"first_name":"Bo"},"message":{"message_id":5,"chat":{"id":8,"type":"private"}}}}`
	rec := post(t, a.Handler(), telegram.WebhookPath("user", "user-secret"), body)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool { return len(user.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	text := user.all()[0].Text
	assert.Contains(t, text, "Steam 20")
	assert.Contains(t, text, "Mobile 5")
}

func TestRedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	cfg.Session = SessionConfig{Backend: BackendRedis, RedisAddr: mr.Addr()}
	a, user, _ := newTestApp(t, cfg, Overrides{RedisClient: client})

	body := `{"update_id":3,"callback_query":{"id":"q","data":"buy_category_mobile","from":{"id":9,"first_name":"Cy"},"message":{"message_id":5,"chat":{"id":9,"type":"private"}}}}`
	rec := post(t, a.Handler(), telegram.WebhookPath("user", "user-secret"), body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool { return len(user.all()) == 1 }, 2*time.Second, 10*time.Millisecond)

	// Zero balance: nothing is placed and no input is awaited.
	assert.Empty(t, mr.Keys())
}

func TestRedisPingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig()
	cfg.Session = SessionConfig{Backend: BackendRedis, RedisAddr: addr}
	require.NoError(t, Normalize(cfg))
	_, err := New(context.Background(), cfg, Overrides{
		LoggerInit:     noLogger,
		UserMessenger:  &inbox{},
		AdminMessenger: &inbox{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping")
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Webhook.Listen = "127.0.0.1"
	cfg.Webhook.Port = 0
	a, _, _ := newTestApp(t, cfg, Overrides{})
	// Normalize turned port 0 into the default; pick an ephemeral one instead.
	a.cfg.Webhook.Port = freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = ""
	cfg.Database.Host = "db"
	cfg.Database.Name = "shop"
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, BackendMemory, cfg.Session.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL())
	assert.Equal(t, "cardshop:session", cfg.Session.KeyPrefix)
	assert.Equal(t, 3000, cfg.Fulfillment.TimeoutMS)
	assert.Equal(t, "Card Shop", cfg.Shop.Name)
	assert.Equal(t, 10, cfg.Shop.HistoryLimit)
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"postgres without host": func(c *Config) { c.Storage.Backend = BackendPostgres },
		"unknown storage":       func(c *Config) { c.Storage.Backend = "mongo" },
		"redis without addr":    func(c *Config) { c.Session.Backend = BackendRedis },
		"unknown session":       func(c *Config) { c.Session.Backend = "etcd" },
		"duplicate category": func(c *Config) {
			c.Catalog = append(c.Catalog, c.Catalog[0])
		},
		"bad price": func(c *Config) { c.Catalog[0].Price = "free" },
		"bad delivery type": func(c *Config) {
			c.Catalog[1].DeliveryType = "pigeon"
		},
		"codes on phone delivery": func(c *Config) {
			c.Catalog[1].Codes = []string{"X"}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(cfg)
			assert.Error(t, Normalize(cfg))
		})
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
telegram:
  user_bot: {token: u, secret: us}
  admin_bot: {token: a, secret: as}
  admin_id: 5
storage:
  backend: memory
shop:
  name: Gift Corner
catalog:
  - id: c1
    name: Riot
    price: "12.00"
    delivery_type: id
    active: false
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), cfg.Telegram.AdminID)
	assert.Equal(t, "Gift Corner", cfg.Shop.Name)
	require.Len(t, cfg.Catalog, 1)

	c, err := cfg.Catalog[0].Category()
	require.NoError(t, err)
	assert.False(t, c.Active)
	assert.EqualValues(t, 1200, c.Price)
}
