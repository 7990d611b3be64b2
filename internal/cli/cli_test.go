package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/Tyrowin/relaychat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturedRequest holds details captured from an incoming HTTP request.
type capturedRequest struct {
	Method        string
	Path          string
	Authorization string
}

// requestRecorder is a thread-safe recorder for HTTP requests received by httptest servers.
type requestRecorder struct {
	mu       sync.Mutex
	requests []capturedRequest
}

func (r *requestRecorder) record(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, capturedRequest{
		Method:        req.Method,
		Path:          req.URL.Path,
		Authorization: req.Header.Get("Authorization"),
	})
}

func (r *requestRecorder) all() []capturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedRequest(nil), r.requests...)
}

// routes maps "METHOD /path" to a JSON body served with 200.
func newRecordingServer(t *testing.T, rec *requestRecorder, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		body, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":404,"message":"no route"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// run executes the root command with an isolated environment.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(envHost, "")
	t.Setenv(envToken, "")
	t.Setenv("JWT_ACCESS_SECRET", "")

	var out bytes.Buffer
	rootCmd := newRootCmd()
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_TokenCmd(t *testing.T) {
	out, err := run(t, "token", "--user", "7", "--secret", "s3cret")
	require.NoError(t, err)

	id, err := auth.SubjectOf(strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, domain.UserID(7), id)

	v, err := auth.NewHS256Validator("s3cret")
	require.NoError(t, err)
	_, err = v.Validate(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
}

func TestCLI_TokenCmdValidation(t *testing.T) {
	_, err := run(t, "token", "--user", "7")
	require.ErrorContains(t, err, "signing secret")

	_, err = run(t, "token", "--secret", "s3cret")
	require.ErrorContains(t, err, "--user")
}

func TestCLI_UnsupportedOutputFormat(t *testing.T) {
	_, err := run(t, "conversations", "-o", "yaml", "--token", "t")
	require.ErrorContains(t, err, "unsupported output format")
}

func TestCLI_RequiresToken(t *testing.T) {
	_, err := run(t, "conversations")
	require.ErrorContains(t, err, "no token")
}

func TestCLI_ConversationsTable(t *testing.T) {
	rec := &requestRecorder{}
	srv := newRecordingServer(t, rec, map[string]string{
		"GET /conversations": `[{"_id":"c1","type":"group","name":"team","participants":[{"id":1},"2"],"pending_participants":[2]}]`,
	})

	out, err := run(t, "--host", srv.URL, "--token", "tok", "conversations")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2, "header + 1 row")
	assert.Contains(t, lines[0], "PARTICIPANTS")
	assert.Contains(t, lines[1], "c1")
	assert.Contains(t, lines[1], "group")
	assert.Contains(t, lines[1], "1,2")

	requests := rec.all()
	require.Len(t, requests, 1)
	assert.Equal(t, "Bearer tok", requests[0].Authorization)
}

func TestCLI_NotificationsReadAll(t *testing.T) {
	rec := &requestRecorder{}
	srv := newRecordingServer(t, rec, map[string]string{
		"PATCH /notifications/read-all": `{"updated":1}`,
		"GET /notifications":            `[{"id":"n1","user_id":"3","type":"new_message","title":"New message","content":"alice: hi","is_read":true}]`,
	})

	out, err := run(t, "--host", srv.URL, "--token", "tok", "-o", "json", "notifications", "--read-all")
	require.NoError(t, err)
	assert.Contains(t, out, `"isRead": true`)
	assert.Contains(t, out, `"userId": 3`)

	requests := rec.all()
	require.Len(t, requests, 2)
	assert.Equal(t, http.MethodPatch, requests[0].Method, "mark-all happens before the listing")
	assert.Equal(t, http.MethodGet, requests[1].Method)
}

func TestCLI_APIErrorPropagation(t *testing.T) {
	rec := &requestRecorder{}
	srv := newRecordingServer(t, rec, nil)

	_, err := run(t, "--host", srv.URL, "--token", "tok", "notifications", "delete", "missing")
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCLI_UserAdd(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "users.db")

	out, err := run(t, "user", "add", "--db", dbPath, "--id", "5", "--name", "eve", "--email", "eve@example.com")
	require.NoError(t, err)
	require.Contains(t, out, "user 5 saved")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	users, err := st.UsersByIDs(context.Background(), []domain.UserID{5})
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "eve", users[0].Username)
}
