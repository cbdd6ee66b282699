package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsiportal/placement-sync/internal/portal"
	"github.com/dsiportal/placement-sync/internal/versions"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "", "version", "--format", "json")
	require.NoError(t, err)

	var info versions.VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)

	out, err = execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "placement-sync "))
}

func TestInspectCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	doc := portal.Document{
		Jobs: []portal.Job{{ID: 1, Company: "Acme", Role: "Engineer", Status: "open"}},
	}
	data, err := doc.Encode()
	require.NoError(t, err)

	docPath := "placement-portal/data"
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs", filepath.Dir(docPath)), 0o750))
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`backend:
  type: file
  documentPath: `+docPath+`
  file:
    dir: `+filepath.Join(dir, "docs")+`
`), 0o600))

	// empty store prints an empty table
	out, err := execute(t, "", "inspect", "jobs", "--config", cfgPath)
	require.NoError(t, err)
	assert.NotContains(t, out, "Acme")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", docPath+".json"), data, 0o600))
	out, err = execute(t, "", "inspect", "jobs", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Acme")
	assert.Contains(t, out, "Engineer")

	_, err = execute(t, "", "inspect", "offers", "--config", cfgPath)
	assert.Error(t, err)
}

func TestRenderCollection(t *testing.T) {
	t.Parallel()

	doc := portal.Document{
		Students:       []portal.Student{{ID: "s1", USN: "1DS21CS001", Name: "Asha", Branch: "CSE", Extra: portal.Extra{"cgpa": json.RawMessage(`8.5`)}}},
		Notifications:  []portal.Notification{{ID: "1700000000000", Type: portal.NotificationInfo, Title: "Drive", Message: "Acme", Timestamp: 1700000000000}},
		JobShortlisted: map[string]portal.Sheet{"2": {{"USN"}, {"1DS21CS001"}}},
	}

	tests := []struct {
		kind string
		want []string
	}{
		{kind: "students", want: []string{"1DS21CS001", "Asha", "8.5"}},
		{kind: "notifications", want: []string{"Drive", "2023-11-14T22:13:20Z"}},
		{kind: "shortlists", want: []string{"2"}},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			require.NoError(t, renderCollection(&buf, doc, tt.kind))
			for _, want := range tt.want {
				assert.Contains(t, buf.String(), want)
			}
		})
	}

	assert.Error(t, renderCollection(&bytes.Buffer{}, doc, "offers"))
}

func TestConfirm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{input: "yes\n", want: true},
		{input: "Y\n", want: true},
		{input: "no\n", want: false},
		{input: "", want: false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		ok, err := confirm(strings.NewReader(tt.input), &out, "Continue?")
		require.NoError(t, err)
		assert.Equal(t, tt.want, ok, "input %q", tt.input)
		assert.Equal(t, "Continue? (yes/no): ", out.String())
	}
}

func TestMigrateRequiresPostgres(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("backend:\n  type: memory\n"), 0o600))

	_, err := execute(t, "", "migrate", "up", "--config", cfgPath, "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres backend")

	_, err = execute(t, "", "migrate", "up")
	assert.Error(t, err, "config is required")
}
