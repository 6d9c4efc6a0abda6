package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DefaultLanguage is assigned to code blocks that carry no info string
const DefaultLanguage = "console"

// CodeBlock is a block-level code snippet found in an answer
type CodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// Target is where a code block can be sent
type Target int

const (
	TargetUnsupported Target = iota
	TargetEditor
	TargetTerminal
)

func (t Target) String() string {
	switch t {
	case TargetEditor:
		return "editor"
	case TargetTerminal:
		return "terminal"
	default:
		return "unsupported"
	}
}

// TargetFor maps a code block language to its target
func TargetFor(language string) Target {
	switch strings.ToLower(language) {
	case "yaml", "yml":
		return TargetEditor
	case "console", "bash", "sh", "shell":
		return TargetTerminal
	default:
		return TargetUnsupported
	}
}

var parser = goldmark.New().Parser()

// ExtractCodeBlocks returns the block-level code blocks of a markdown
// document in order. Inline code spans are not code blocks.
func ExtractCodeBlocks(md string) []CodeBlock {
	source := []byte(md)
	doc := parser.Parse(text.NewReader(source))

	var blocks []CodeBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch b := n.(type) {
		case *ast.FencedCodeBlock:
			lang := strings.ToLower(string(b.Language(source)))
			if lang == "" {
				lang = DefaultLanguage
			}
			blocks = append(blocks, CodeBlock{Language: lang, Code: linesOf(b, source)})
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			blocks = append(blocks, CodeBlock{Language: DefaultLanguage, Code: linesOf(b, source)})
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return blocks
}

func linesOf(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

// ApplyYAML returns the editor content after inserting code. Replace mode
// discards the editor content; append mode adds code as a new YAML document.
func ApplyYAML(editor, code string, appendMode bool) string {
	if !appendMode || strings.TrimSpace(editor) == "" {
		return code
	}
	return strings.TrimRight(editor, "\n") + "\n---\n" + code
}
