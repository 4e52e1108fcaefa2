// cmd/preflight/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hamed0406/waterwatch/internal/catalog"
	"github.com/hamed0406/waterwatch/internal/config"
)

func main() {
	cfgPath := flag.String("config", "waterwatch.yaml", "path to the YAML config file (optional)")
	flag.Parse()

	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fail(err.Error())
	}
	ok("config valid")

	if len(cfg.Server.AdminKeys) == 0 {
		warn("no admin keys (WATERWATCH_SERVER_ADMINKEYS); settings and checks are open to anyone who can reach " + cfg.Server.Addr)
	}
	if len(cfg.Server.PublicKeys) == 0 && len(cfg.Server.AdminKeys) > 0 {
		warn("no public keys; read routes and /ws need the admin key")
	}
	for _, k := range append(append([]string{}, cfg.Server.PublicKeys...), cfg.Server.AdminKeys...) {
		if len(k) < 12 {
			warn("an API key is shorter than 12 characters")
			break
		}
	}
	ok("ADDR=" + cfg.Server.Addr)

	if _, err := time.LoadLocation(cfg.Upstream.Timezone); err != nil {
		fail("upstream.timezone " + cfg.Upstream.Timezone + " not loadable: " + err.Error())
	}
	ok("timezone " + cfg.Upstream.Timezone)

	switch cfg.Store.Backend {
	case "memory":
		warn("memory store: fingerprint and settings are lost on restart")
	case "file":
		dir := filepath.Dir(cfg.Store.FilePath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fail("store dir " + dir + ": " + err.Error())
		}
		probe, err := os.CreateTemp(dir, ".preflight-*")
		if err != nil {
			fail("store dir " + dir + " not writable: " + err.Error())
		}
		_ = probe.Close()
		_ = os.Remove(probe.Name())
		ok("file store " + cfg.Store.FilePath)
	case "redis":
		ok("redis store at " + cfg.Store.RedisAddr)
	case "postgres":
		if !strings.HasPrefix(cfg.Store.DatabaseURL, "postgres") {
			warn("store.databaseURL does not look like a postgres:// URL")
		}
		ok("postgres store configured")
	}

	if cfg.Notify.SlackWebhook == "" && cfg.Notify.WebhookURL == "" {
		warn("no Slack or webhook sink; system notifications only reach the log")
	}
	if cfg.Alarm.DevPollInterval > 0 {
		warn("alarm.devPollInterval is set; upstream is polled every " + cfg.Alarm.DevPollInterval.String())
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		ok("any origin allowed for the API and /ws")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.Server.AllowedOrigins, ","))
	}

	if _, err := catalog.Default(); err != nil {
		fail("embedded catalog: " + err.Error())
	}

	ok("preflight passed")
}
