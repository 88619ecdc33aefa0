package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/comigor/sonar-go/internal/history"
	"github.com/comigor/sonar-go/internal/logger"
)

// testEnv is a config file plus the history database it points at.
type testEnv struct {
	dir    string
	dbPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	return &testEnv{dir: dir, dbPath: filepath.Join(dir, "history.db")}
}

// config writes a config for the given user (empty email means guest) and
// returns its path.
func (e *testEnv) config(t *testing.T, baseURL, email string, historyEnabled bool) string {
	t.Helper()
	provider := "guest"
	if email != "" {
		provider = "static"
	}
	body := fmt.Sprintf(`llm:
  base_url: %q
history:
  enabled: %t
  db_path: %q
identity:
  provider: %s
  email: %q
reveal:
  interval: 1ms
log:
  level: error
`, baseURL, historyEnabled, e.dbPath, provider, email)
	path := filepath.Join(e.dir, fmt.Sprintf("config-%s.yaml", uuid.NewString()))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func (e *testEnv) store(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.Open(context.Background(), e.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seed stores one session with a single user message for email and returns
// the account and session.
func (e *testEnv) seed(t *testing.T, email, content string) (history.Account, history.Session) {
	t.Helper()
	ctx := context.Background()
	s, err := history.Open(ctx, e.dbPath)
	require.NoError(t, err)
	defer s.Close()

	account, err := s.UpsertAccount(ctx, history.Account{ExternalUID: email, Email: email, Provider: "static"})
	require.NoError(t, err)
	sess, err := s.CreateSession(ctx, account.ID, content, "sonar(clinesp)")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, history.Message{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		UserID:    account.ID,
		Content:   content,
		Role:      "user",
		CreatedAt: time.Now(),
	}))
	return account, sess
}

// runCLI executes the root command with args and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	configFlag, modelFlag, logLevelFlag = "", "", ""
	instantFlag, noMarkdownFlag = false, false
	logger.SetOutput(io.Discard)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// completionServer answers every chat completion with status and body.
func completionServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func reply(content string) string {
	return fmt.Sprintf(`{"id":"cmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, content)
}

func TestReadPromptPrefersArgument(t *testing.T) {
	got, err := readPrompt([]string{"from args"}, strings.NewReader("from stdin"))
	require.NoError(t, err)
	require.Equal(t, "from args", got)
}

func TestReadPromptFromStdin(t *testing.T) {
	got, err := readPrompt(nil, strings.NewReader("line one\nline two\n\n"))
	require.NoError(t, err)
	require.Equal(t, "line one\nline two", got)
}

func TestTypewritePrintsWholeText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, typewrite(context.Background(), &buf, "héllo", time.Millisecond))
	require.Equal(t, "héllo\n", buf.String())
}

func TestTypewriteEmptyText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, typewrite(context.Background(), &buf, "", time.Millisecond))
	require.Equal(t, "\n", buf.String())
}
