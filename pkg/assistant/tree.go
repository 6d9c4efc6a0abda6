package assistant

import "strings"

// ModelTreeNode is one node of the model picker tree. Leaves carry the
// model id; inner nodes carry their path segment.
type ModelTreeNode struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Children []*ModelTreeNode `json:"children,omitempty"`
}

// IsLeaf reports whether the node selects a model
func (n *ModelTreeNode) IsLeaf() bool { return len(n.Children) == 0 }

// BuildModelTree arranges models by their slash-delimited model_path.
// The first model claiming a path segment owns it; a model without a path
// is placed under its id.
func BuildModelTree(models []Model) *ModelTreeNode {
	root := &ModelTreeNode{ID: "models", Name: "models"}
	for _, m := range models {
		parts := splitModelPath(m)
		node := root
		for i, part := range parts {
			var child *ModelTreeNode
			for _, c := range node.Children {
				if c.Name == part {
					child = c
					break
				}
			}
			if child == nil {
				id := part
				if i == len(parts)-1 {
					id = m.ModelID
				}
				child = &ModelTreeNode{ID: id, Name: part}
				node.Children = append(node.Children, child)
			}
			node = child
		}
	}
	return root
}

// ModelLabel returns the last segment of a model's path
func ModelLabel(m Model) string {
	parts := splitModelPath(m)
	return parts[len(parts)-1]
}

func splitModelPath(m Model) []string {
	var parts []string
	for _, p := range strings.Split(m.ModelPath, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		parts = []string{m.ModelID}
	}
	return parts
}
