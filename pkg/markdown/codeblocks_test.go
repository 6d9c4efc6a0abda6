package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCodeBlocks(t *testing.T) {
	md := "Here is the deployment:\n\n" +
		"```yaml\napiVersion: apps/v1\nkind: Deployment\n```\n\n" +
		"Apply it with `kubectl apply`:\n\n" +
		"```\nkubectl apply -f redis.yaml\n```\n\n" +
		"```Bash\necho done\n```\n\n" +
		"    indented line\n"

	blocks := ExtractCodeBlocks(md)
	require.Len(t, blocks, 4)

	assert.Equal(t, CodeBlock{Language: "yaml", Code: "apiVersion: apps/v1\nkind: Deployment\n"}, blocks[0])
	assert.Equal(t, CodeBlock{Language: "console", Code: "kubectl apply -f redis.yaml\n"}, blocks[1])
	assert.Equal(t, "bash", blocks[2].Language)
	assert.Equal(t, CodeBlock{Language: "console", Code: "indented line\n"}, blocks[3])
}

func TestExtractCodeBlocks_None(t *testing.T) {
	assert.Empty(t, ExtractCodeBlocks("just `inline` code"))
	assert.Empty(t, ExtractCodeBlocks(""))
}

func TestTargetFor(t *testing.T) {
	tests := []struct {
		lang string
		want Target
	}{
		{"yaml", TargetEditor},
		{"YAML", TargetEditor},
		{"yml", TargetEditor},
		{"console", TargetTerminal},
		{"bash", TargetTerminal},
		{"sh", TargetTerminal},
		{"python", TargetUnsupported},
		{"", TargetUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			assert.Equal(t, tt.want, TargetFor(tt.lang))
		})
	}
	assert.Equal(t, "editor", TargetEditor.String())
	assert.Equal(t, "unsupported", TargetUnsupported.String())
}

func TestApplyYAML(t *testing.T) {
	code := "replicas: 2\n"

	assert.Equal(t, code, ApplyYAML("kind: Deployment\n", code, false))
	assert.Equal(t, code, ApplyYAML("", code, true))
	assert.Equal(t, code, ApplyYAML("  \n", code, true))
	assert.Equal(t, "kind: Deployment\n---\nreplicas: 2\n", ApplyYAML("kind: Deployment\n\n", code, true))
	assert.Equal(t, "kind: Deployment\n---\nreplicas: 2\n", ApplyYAML("kind: Deployment", code, true))
}

func TestDiff(t *testing.T) {
	out, err := Diff("kind: Deployment\nreplicas: 1\n", "kind: Deployment\nreplicas: 2\n")
	require.NoError(t, err)

	assert.Contains(t, out, "--- current")
	assert.Contains(t, out, "+++ assistant")
	assert.Contains(t, out, "-replicas: 1")
	assert.Contains(t, out, "+replicas: 2")

	same, err := Diff("a: 1\n", "a: 1\n")
	require.NoError(t, err)
	assert.Empty(t, same)
}

func TestRender(t *testing.T) {
	out, err := Render("# Title\n\n```yaml\nreplicas: 2\n```\n", 80)
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "replicas")
}
