package namespace

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/discos/statuskit/errors"
)

// Render produces a textual view of the subtree rooted at this node.
// Supported specifiers:
//
//	"c"    compact JSON, values and metadata
//	"i"    indented JSON, width 2
//	"<n>i" indented JSON, width n (n > 0)
//	"v"    values only, compact
//	"m"    metadata only, compact
//
// Rendering works on a deep copy of the subtree and never touches cache
// state. Unknown or malformed specifiers return ErrBadRenderSpec.
func (n *Node) Render(spec string) (string, error) {
	snapshot := n.Copy()

	switch {
	case spec == "c":
		return marshal(snapshot.document(), "")
	case spec == "v":
		return marshal(snapshot.values(), "")
	case spec == "m":
		return marshal(snapshot.metadata(), "")
	case strings.HasSuffix(spec, "i"):
		width := 2
		if digits := strings.TrimSuffix(spec, "i"); digits != "" {
			w, err := strconv.Atoi(digits)
			if err != nil || w <= 0 {
				return "", fmt.Errorf("%w: %q", errors.ErrBadRenderSpec, spec)
			}
			width = w
		}
		return marshal(snapshot.document(), strings.Repeat(" ", width))
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrBadRenderSpec, spec)
	}
}

func marshal(doc any, indent string) (string, error) {
	var out []byte
	var err error
	if indent == "" {
		out, err = json.Marshal(doc)
	} else {
		out, err = json.MarshalIndent(doc, "", indent)
	}
	if err != nil {
		return "", errors.Wrap(err, "namespace", "render", "encode document")
	}
	return string(out), nil
}

// document renders values and metadata together: each leaf becomes an
// object with its value (when present) and its schema annotations.
func (n *Node) document() any {
	switch n.kind {
	case KindComposite:
		out := make(map[string]any, len(n.children))
		for name, child := range n.children {
			out[name] = child.document()
		}
		return out
	case KindArray:
		out := make([]any, len(n.elems))
		for i, child := range n.elems {
			out[i] = child.document()
		}
		return out
	default:
		doc := n.metaDoc()
		if n.hasValue {
			doc["value"] = n.value
		}
		return doc
	}
}

// values renders the plain value tree: absent leaves render as null.
func (n *Node) values() any {
	switch n.kind {
	case KindComposite:
		out := make(map[string]any, len(n.children))
		for name, child := range n.children {
			out[name] = child.values()
		}
		return out
	case KindArray:
		out := make([]any, len(n.elems))
		for i, child := range n.elems {
			out[i] = child.values()
		}
		return out
	default:
		return n.value
	}
}

// metadata renders the schema annotations only.
func (n *Node) metadata() any {
	switch n.kind {
	case KindComposite:
		out := make(map[string]any, len(n.children))
		for name, child := range n.children {
			out[name] = child.metadata()
		}
		return out
	case KindArray:
		out := make([]any, len(n.elems))
		for i, child := range n.elems {
			out[i] = child.metadata()
		}
		return out
	default:
		return n.metaDoc()
	}
}

func (n *Node) metaDoc() map[string]any {
	doc := make(map[string]any)
	if n.meta.Type != "" {
		doc["type"] = n.meta.Type
	}
	if n.meta.Title != "" {
		doc["title"] = n.meta.Title
	}
	if n.meta.Description != "" {
		doc["description"] = n.meta.Description
	}
	if n.meta.Format != "" {
		doc["format"] = n.meta.Format
	}
	if n.meta.Unit != "" {
		doc["unit"] = n.meta.Unit
	}
	if len(n.meta.Enum) > 0 {
		doc["enum"] = n.meta.Enum
	}
	return doc
}
