package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
models:
  gemini_api_key: test_key
sources:
  - id: hf
    type: hf_papers
  - id: clips
    type: youtube
    options:
      channel_id: UC123
      category: entertainment
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "tmp_raw_sources", cfg.DocumentsDir)
	assert.Equal(t, "gemini-2.5-pro", cfg.Models.Primary)
	assert.Equal(t, "gemini-2.5-flash", cfg.Models.Secondary)
	assert.Equal(t, 3*time.Second, cfg.Models.DelayDuration())
	assert.Equal(t, 2*time.Minute, cfg.Models.CallTimeoutDuration())
	assert.Equal(t, []string{"stdout"}, cfg.Publisher.Types)

	hf := cfg.Sources[0]
	assert.Equal(t, "hf", hf.Name)
	assert.Equal(t, "link", hf.KeyField)
	assert.Equal(t, []string{"id", "pdf_path"}, hf.IgnoreFields)
	assert.True(t, hf.SummarizeEnabled())
	assert.Equal(t, CategoryTechno, hf.Category)

	yt := cfg.Sources[1]
	assert.Equal(t, "id", yt.KeyField)
	assert.Equal(t, CategoryEntertainment, yt.Category)
	assert.Equal(t, []string{"id", "transcript", "link"}, yt.IgnoreFields)
}

func TestLoadConfigExpandsEnvVars(t *testing.T) {
	t.Setenv("DIGEST_TEST_GEMINI_KEY", "from-env")
	path := writeConfig(t, "config.yaml", `
models:
  gemini_api_key: ${DIGEST_TEST_GEMINI_KEY}
sources:
  - id: arxiv-ai
    type: arxiv
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Models.GeminiAPIKey)
}

func TestLoadConfigTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
data_dir = "state"

[models]
anthropic_api_key = "k"
primary = "claude-sonnet-4-5"
secondary = "claude-haiku-4-5"
delay = "500ms"

[[sources]]
id = "actuia-ia"
type = "actuia"
summarize = false
delay = "1s"

[sources.options]
domain = "intelligence-artificielle"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "state", cfg.DataDir)
	assert.Equal(t, 500*time.Millisecond, cfg.Models.DelayDuration())

	s, ok := cfg.Source("actuia-ia")
	require.True(t, ok)
	assert.False(t, s.SummarizeEnabled())
	assert.Equal(t, time.Second, s.DelayDuration(cfg.Models.DelayDuration()))
	assert.Equal(t, "intelligence-artificielle", s.Option("domain", ""))
	assert.Equal(t, []string{"content", "link"}, s.IgnoreFields)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "no sources",
			content: "models:\n  gemini_api_key: k\n",
		},
		{
			name:    "unknown source type",
			content: "models:\n  gemini_api_key: k\nsources:\n  - id: x\n    type: rss\n",
		},
		{
			name:    "duplicate source id",
			content: "models:\n  gemini_api_key: k\nsources:\n  - id: x\n    type: arxiv\n  - id: x\n    type: arxiv\n",
		},
		{
			name:    "missing api key",
			content: "sources:\n  - id: x\n    type: arxiv\n",
		},
		{
			name:    "youtube without channel",
			content: "models:\n  gemini_api_key: k\nsources:\n  - id: x\n    type: youtube\n",
		},
		{
			name:    "bad delay",
			content: "models:\n  gemini_api_key: k\n  delay: soon\nsources:\n  - id: x\n    type: arxiv\n",
		},
		{
			name:    "email without smtp host",
			content: "models:\n  gemini_api_key: k\npublisher:\n  types: [email]\n  email:\n    from: a@example.com\n    to: [b@example.com]\nsources:\n  - id: x\n    type: arxiv\n",
		},
		{
			name:    "invalid recipient",
			content: "models:\n  gemini_api_key: k\nsources:\n  - id: x\n    type: arxiv\n    recipients: [not-an-address]\n",
		},
		{
			name:    "key field not produced by actuia",
			content: "models:\n  gemini_api_key: k\nsources:\n  - id: x\n    type: actuia\n    key_field: id\n    options:\n      domain: business\n",
		},
		{
			name:    "key field not produced by youtube",
			content: "models:\n  gemini_api_key: k\nsources:\n  - id: x\n    type: youtube\n    key_field: pdf_path\n    options:\n      channel_id: UC1\n",
		},
		{
			name:    "bad column alignment",
			content: "models:\n  gemini_api_key: k\ndigest:\n  columns:\n    summary:\n      align: middle\nsources:\n  - id: x\n    type: arxiv\n",
		},
		{
			name:    "discord without webhook",
			content: "models:\n  gemini_api_key: k\npublisher:\n  types: [discord]\nsources:\n  - id: x\n    type: arxiv\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigKeyFieldErrorNamesAllowedFields(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
models:
  gemini_api_key: k
sources:
  - id: biz
    type: actuia
    key_field: id
    options:
      domain: business
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sources[biz].key_field "id"`)
	assert.Contains(t, err.Error(), "link")
}

func TestLoadConfigInsuranceTimesDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
models:
  gemini_api_key: k
sources:
  - id: it-cyber
    type: insurance_times
    options:
      domain: topics/cyber
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	s := cfg.Sources[0]
	assert.Equal(t, "link", s.KeyField)
	assert.Equal(t, []string{"content", "link"}, s.IgnoreFields)
	assert.Equal(t, CategoryBusiness, s.Category)
}

func TestLoadConfigDigestColumns(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
models:
  gemini_api_key: k
digest:
  columns:
    summary:
      width: 70vw
    title:
      align: center
sources:
  - id: x
    type: arxiv
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ColumnConfig{Width: "70vw"}, cfg.Digest.Columns["summary"])
	assert.Equal(t, ColumnConfig{Align: "center"}, cfg.Digest.Columns["title"])
}

func TestLoadConfigNoKeyWhenSummarizationDisabled(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
sources:
  - id: x
    type: arxiv
    summarize: false
`)
	_, err := Load(path)
	assert.NoError(t, err)
}

func TestRecipientsDefaultToEmailTo(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
models:
  gemini_api_key: k
publisher:
  types: [email]
  email:
    smtp_host: smtp.example.com
    from: digest@example.com
    to: [team@example.com]
sources:
  - id: x
    type: arxiv
  - id: y
    type: arxiv
    recipients: [solo@example.com]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"team@example.com"}, cfg.Sources[0].Recipients)
	assert.Equal(t, []string{"solo@example.com"}, cfg.Sources[1].Recipients)
}

func TestExpandEnvVarsLeavesUnknown(t *testing.T) {
	assert.Equal(t, "${DIGEST_SURELY_UNSET_VAR}", expandEnvVars("${DIGEST_SURELY_UNSET_VAR}"))
}
