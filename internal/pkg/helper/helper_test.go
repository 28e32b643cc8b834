package helper

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSender_Send(t *testing.T) {
	var gotPath string
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("token123", "42")
	s.APIBase = srv.URL
	require.NoError(t, s.Send(context.Background(), "Weekly Backup Report"))

	assert.Equal(t, "/bottoken123/sendMessage", gotPath)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "Weekly Backup Report", got["text"])
}

func TestTelegramSender_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewTelegramSender("token123", "42")
	s.APIBase = srv.URL
	assert.ErrorContains(t, s.Send(context.Background(), "hi"), "502")
}

func TestTelegramSender_DisabledWithoutToken(t *testing.T) {
	s := NewTelegramSender("", "42")
	s.APIBase = "http://127.0.0.1:1"
	assert.False(t, s.Enabled())
	assert.NoError(t, s.Send(context.Background(), "hi"))
}

func TestSplitEndpoint(t *testing.T) {
	host, secure := splitEndpoint("https://acc.r2.cloudflarestorage.com")
	assert.Equal(t, "acc.r2.cloudflarestorage.com", host)
	assert.True(t, secure)

	host, secure = splitEndpoint("http://localhost:9000")
	assert.Equal(t, "localhost:9000", host)
	assert.False(t, secure)

	host, secure = splitEndpoint("s3.example.com")
	assert.Equal(t, "s3.example.com", host)
	assert.True(t, secure)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "reports/backup_report_20240108_090000.json",
		(&Storage{pathPrefix: "reports"}).objectKey("backup_report_20240108_090000.json"))
	assert.Equal(t, "a.json", (&Storage{}).objectKey("a.json"))
}

func TestAcquireDaemonLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "hybrid-backup.lock")
	log, hook := logtest.NewNullLogger()

	first, err := AcquireDaemonLock(path, log)
	require.NoError(t, err)
	assert.Equal(t, path, first.Path())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, path, hook.LastEntry().Data["lock_file"])

	_, err = AcquireDaemonLock(path, log)
	assert.ErrorIs(t, err, ErrDaemonRunning)
	assert.ErrorContains(t, err, path)

	first.Release()
	first.Release()
	assert.Equal(t, "Daemon lock released", hook.LastEntry().Message)

	second, err := AcquireDaemonLock(path, log)
	require.NoError(t, err)
	second.Release()
}
