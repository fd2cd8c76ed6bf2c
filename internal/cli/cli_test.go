package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, handler http.HandlerFunc, stdin string, args ...string) (string, error) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--api-url", server.URL, "--token", "tok"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func TestTicketsList_JSON(t *testing.T) {
	var gotQuery string
	out, err := runCLI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tickets", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		gotQuery = r.URL.RawQuery
		writeData(w, http.StatusOK, []map[string]any{
			{"id": "t-1", "subject": "Printer jam", "priority": "low", "status": "open"},
			{"id": "t-2", "subject": "Server down", "priority": "urgent", "status": "open"},
		})
	}, "", "--format", "json", "tickets", "list", "--status", "open", "--assignee", "unassigned", "--sort-priority")
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "status=open")
	assert.Contains(t, gotQuery, "assignee=unassigned")

	var tickets []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &tickets))
	require.Len(t, tickets, 2)
	assert.Equal(t, "t-2", tickets[0]["id"], "urgent first")
}

func TestTicketsList_Table(t *testing.T) {
	out, err := runCLI(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, []map[string]any{
			{"id": "t-1", "subject": "Printer jam", "priority": "low", "status": "open"},
		})
	}, "", "tickets", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "PRIORITY")
	assert.Contains(t, out, "Printer jam")
}

func TestTicketsList_HintsAtNextPage(t *testing.T) {
	out, err := runCLI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"t-1","subject":"Printer jam"}],"meta":{"page":1,"page_size":1,"has_more":true}}`))
	}, "", "tickets", "list", "--page-size", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "rerun with --page 2")
}

func TestTicketsCreate_ValidatesLocally(t *testing.T) {
	_, err := runCLI(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}, "", "tickets", "create", "--subject", "Hi", "--description", "too short")
	require.Error(t, err)
}

func TestInvalidFormat(t *testing.T) {
	_, err := runCLI(t, func(w http.ResponseWriter, r *http.Request) {}, "", "--format", "yaml", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestServerErrorSurfaces(t *testing.T) {
	_, err := runCLI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"FORBIDDEN","message":"staff role required"}}`))
	}, "", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staff role required")
}

func TestInvitesSend(t *testing.T) {
	out, err := runCLI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/handle-invite", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "new@example.com", body["email"])
		assert.Equal(t, "admin", body["role"])
		_, _ = w.Write([]byte(`{"message":"Invitation sent successfully"}`))
	}, "", "invites", "send", "--email", "new@example.com", "--role", "admin")
	require.NoError(t, err)
	assert.Contains(t, out, "Invitation sent successfully")
}

func TestChat_InteractiveLoop(t *testing.T) {
	var histories []int
	out, err := runCLI(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages       []map[string]string `json:"messages"`
			NewUserMessage string              `json:"newUserMessage"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		histories = append(histories, len(body.Messages))
		_, _ = w.Write([]byte(`{"reply":"echo: ` + body.NewUserMessage + `"}`))
	}, "hello\n\nagain\n", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "echo: hello")
	assert.Contains(t, out, "echo: again")
	assert.Equal(t, []int{0, 2}, histories)
}

func TestTicketsAttach(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	out, err := runCLI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tickets/t-1/attachments", r.URL.Path)
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		writeData(w, http.StatusCreated, map[string]any{"id": "f-1", "ticket_id": "t-1", "file_name": header.Filename})
	}, "", "tickets", "attach", "t-1", path)
	require.NoError(t, err)
	assert.Contains(t, out, "uploaded notes.txt as f-1")
}
