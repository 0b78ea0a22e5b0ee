package config

import (
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Live serves settings that must reflect the current configuration rather
// than the values read at startup. Environment variables win over the file,
// and the file is re-read when it changes.
type Live struct {
	chatURL   atomic.Pointer[string]
	ingestURL atomic.Pointer[string]
}

func newLive(v *viper.Viper, watch bool) *Live {
	l := &Live{}
	l.refresh(v)
	if watch {
		v.OnConfigChange(func(fsnotify.Event) { l.refresh(v) })
		v.WatchConfig()
	}
	return l
}

// NewStaticLive returns a Live with fixed file values, for tests and tools.
func NewStaticLive(chatURL, ingestURL string) *Live {
	l := &Live{}
	l.chatURL.Store(&chatURL)
	l.ingestURL.Store(&ingestURL)
	return l
}

func (l *Live) refresh(v *viper.Viper) {
	chat := v.GetString("delegation.chat_url")
	ingest := v.GetString("delegation.ingest_url")
	l.chatURL.Store(&chat)
	l.ingestURL.Store(&ingest)
}

// ChatWebhookURL returns the chat workflow URL, or "" when chat runs locally.
func (l *Live) ChatWebhookURL() string {
	return l.lookup("DELEGATION_CHAT_URL", &l.chatURL)
}

// IngestWebhookURL returns the ingestion workflow URL, or "" when ingestion
// runs locally.
func (l *Live) IngestWebhookURL() string {
	return l.lookup("DELEGATION_INGEST_URL", &l.ingestURL)
}

func (l *Live) lookup(env string, fileValue *atomic.Pointer[string]) string {
	if v, ok := os.LookupEnv(EnvPrefix + "_" + env); ok {
		return strings.TrimSpace(v)
	}
	if p := fileValue.Load(); p != nil {
		return strings.TrimSpace(*p)
	}
	return ""
}
