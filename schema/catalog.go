package schema

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/discos/statuskit/errors"
)

// Catalog holds the fully resolved schema library: one resolved document
// per topic plus the shared matcher with its compiled pattern cache.
type Catalog struct {
	schemas map[string]Fragment // absolute id -> resolved document
	topics  map[string]string   // node name -> absolute id
	matcher *Matcher
}

// Option configures catalog loading.
type Option func(*loader)

// WithTelescope loads the overlay subdirectory named after the given
// deployment variant in addition to common/.
func WithTelescope(name string) Option {
	return func(l *loader) { l.telescope = strings.ToLower(name) }
}

// WithCompileCheck compiles every resolved document with gojsonschema
// after resolution and fails the load if one is not a structurally valid
// JSON Schema. Vendor keywords (node, unit, initialize) are permitted.
func WithCompileCheck() Option {
	return func(l *loader) { l.compileCheck = true }
}

// WithLogger sets the logger used during loading.
func WithLogger(logger *slog.Logger) Option {
	return func(l *loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

type loader struct {
	root         string
	telescope    string
	compileCheck bool
	logger       *slog.Logger

	definitions map[string]map[string]any
	schemas     map[string]map[string]any
	topics      map[string]string
}

// Load reads the schema library under root and resolves it into a Catalog.
// Any missing node field, unresolvable or cyclic $ref, or reference
// escaping the schema root fails the load.
func Load(root string, opts ...Option) (*Catalog, error) {
	l := &loader{
		root:        root,
		logger:      slog.Default(),
		definitions: make(map[string]map[string]any),
		schemas:     make(map[string]map[string]any),
		topics:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.loadFiles(); err != nil {
		return nil, err
	}
	if err := l.resolve(); err != nil {
		return nil, err
	}

	cat := &Catalog{
		schemas: make(map[string]Fragment, len(l.schemas)),
		topics:  l.topics,
		matcher: NewMatcher(),
	}
	for id, doc := range l.schemas {
		frag := Fragment(doc)
		cat.schemas[id] = frag
		cat.matcher.precompile(frag)
	}

	if l.compileCheck {
		if err := l.checkCompilable(cat); err != nil {
			return nil, err
		}
	}

	l.logger.Debug("schema catalog loaded",
		"topics", len(cat.topics),
		"definitions", len(l.definitions),
		"root", root)
	return cat, nil
}

// Topics returns the loaded logical topic names, sorted.
func (c *Catalog) Topics() []string {
	out := make([]string, 0, len(c.topics))
	for name := range c.topics {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HasTopic reports whether a topic exists in the catalog.
func (c *Catalog) HasTopic(topic string) bool {
	_, ok := c.topics[topic]
	return ok
}

// Schema returns the resolved document for a topic.
func (c *Catalog) Schema(topic string) (Fragment, bool) {
	id, ok := c.topics[topic]
	if !ok {
		return nil, false
	}
	frag, ok := c.schemas[id]
	return frag, ok
}

// Matcher returns the catalog's shared matcher.
func (c *Catalog) Matcher() *Matcher {
	return c.matcher
}

func (l *loader) loadFiles() error {
	defsDir := filepath.Join(l.root, "definitions")
	if _, err := os.Stat(defsDir); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrSchemaNotFound, defsDir)
	}

	defFiles, err := listJSON(defsDir)
	if err != nil {
		return errors.WrapFatal(err, "Catalog", "Load", "scan definitions")
	}
	for _, name := range defFiles {
		rel := path.Join("definitions", name)
		doc, err := l.readDocument(rel)
		if err != nil {
			return err
		}
		id := rel
		if declared, ok := doc["$id"].(string); ok && declared != "" {
			id = declared
		}
		l.definitions[id] = doc
		if id != rel {
			l.definitions[rel] = doc
		}
	}

	dirs := []string{"common"}
	if l.telescope != "" {
		dirs = append(dirs, l.telescope)
	}
	for _, dir := range dirs {
		full := filepath.Join(l.root, dir)
		if _, err := os.Stat(full); err != nil {
			return fmt.Errorf("%w: %s", errors.ErrSchemaNotFound, full)
		}
		files, err := listJSON(full)
		if err != nil {
			return errors.WrapFatal(err, "Catalog", "Load", "scan "+dir)
		}
		seen := make(map[string]string)
		for _, name := range files {
			rel := path.Join(dir, name)
			doc, err := l.readDocument(rel)
			if err != nil {
				return err
			}
			id := rel
			if declared, ok := doc["$id"].(string); ok && declared != "" {
				id = declared
			}
			node, _ := doc["node"].(string)
			if node == "" {
				return fmt.Errorf("%w: %s", errors.ErrMissingNode, rel)
			}
			if prev, dup := seen[node]; dup {
				return fmt.Errorf("%w: node %q declared by both %s and %s",
					errors.ErrInvalidSchema, node, prev, rel)
			}
			seen[node] = rel
			// A telescope overlay intentionally replaces the common
			// schema carrying the same node name.
			l.topics[node] = id
			l.schemas[id] = doc
			if defs, ok := doc["$defs"].(map[string]any); ok {
				for k, v := range defs {
					if sub, ok := v.(map[string]any); ok {
						l.definitions[fmt.Sprintf("%s#/$defs/%s", rel, k)] = sub
						if id != rel {
							l.definitions[fmt.Sprintf("%s#/$defs/%s", id, k)] = sub
						}
					}
				}
			}
		}
	}
	return nil
}

func (l *loader) readDocument(rel string) (map[string]any, error) {
	data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, errors.WrapFatal(err, "Catalog", "Load", "read "+rel)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errors.ErrInvalidSchema, rel, err)
	}
	if err := absolutizeRefs(doc, rel); err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}
	return doc, nil
}

func (l *loader) resolve() error {
	for id, def := range l.definitions {
		expanded, err := l.expand(def, map[string]bool{id: true})
		if err != nil {
			return fmt.Errorf("definition %s: %w", id, err)
		}
		l.definitions[id] = flattenAllOf(expanded).(map[string]any)
	}
	for id, doc := range l.schemas {
		expanded, err := l.expand(doc, make(map[string]bool))
		if err != nil {
			return fmt.Errorf("schema %s: %w", id, err)
		}
		resolved := flattenAllOf(expanded).(map[string]any)
		delete(resolved, "$defs")
		l.schemas[id] = resolved
	}
	return nil
}

// expand recursively inlines $ref nodes. Sibling keys on a referencing
// node shallowly override the referenced definition's keys. The active set
// tracks in-flight reference ids so cycles fail instead of recursing.
func (l *loader) expand(obj any, active map[string]bool) (any, error) {
	switch v := obj.(type) {
	case map[string]any:
		if ref, ok := v["$ref"].(string); ok {
			if active[ref] {
				return nil, fmt.Errorf("%w: %s", errors.ErrRefCycle, ref)
			}
			def, ok := l.definitions[ref]
			if !ok {
				return nil, fmt.Errorf("%w: %s", errors.ErrUnresolvedRef, ref)
			}
			merged := make(map[string]any, len(def)+len(v))
			for k, dv := range def {
				merged[k] = dv
			}
			for k, sv := range v {
				if k != "$ref" {
					merged[k] = sv
				}
			}
			active[ref] = true
			out, err := l.expand(merged, active)
			delete(active, ref)
			return out, err
		}
		out := make(map[string]any, len(v))
		for k, val := range v {
			expanded, err := l.expand(val, active)
			if err != nil {
				return nil, err
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			expanded, err := l.expand(item, active)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return obj, nil
	}
}

func (l *loader) checkCompilable(cat *Catalog) error {
	for topic, id := range cat.topics {
		doc := map[string]any(cat.schemas[id])
		if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc)); err != nil {
			return fmt.Errorf("%w: topic %s (%s): %v", errors.ErrInvalidSchema, topic, id, err)
		}
	}
	return nil
}

// absolutizeRefs rewrites every $ref in doc, in place, to an absolute
// identifier relative to the schema root. currentFile is the document's
// slash-separated path relative to the root.
func absolutizeRefs(obj any, currentFile string) error {
	switch v := obj.(type) {
	case map[string]any:
		if ref, ok := v["$ref"].(string); ok {
			normalized, err := normalizeRef(ref, currentFile)
			if err != nil {
				return err
			}
			v["$ref"] = normalized
		}
		for _, val := range v {
			if err := absolutizeRefs(val, currentFile); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range v {
			if err := absolutizeRefs(item, currentFile); err != nil {
				return err
			}
		}
	}
	return nil
}

// normalizeRef turns a raw $ref into its canonical absolute form.
// Fragment-only refs become <file>#<fragment>; relative paths (possibly
// with ..) are resolved against the owning file's directory and
// re-expressed relative to the schema root.
func normalizeRef(ref, currentFile string) (string, error) {
	if strings.HasPrefix(ref, "#") {
		return currentFile + ref, nil
	}
	refPath, frag, hasFrag := strings.Cut(ref, "#")
	var result string
	if strings.Contains(refPath, "..") {
		result = path.Join(path.Dir(currentFile), refPath)
		if result == ".." || strings.HasPrefix(result, "../") {
			return "", fmt.Errorf("%w: %s (from %s)", errors.ErrRefOutsideRoot, ref, currentFile)
		}
	} else {
		result = refPath
	}
	if hasFrag {
		return result + "#" + frag, nil
	}
	return result, nil
}

// flattenAllOf recursively merges allOf arrays into their parents.
func flattenAllOf(obj any) any {
	switch v := obj.(type) {
	case map[string]any:
		if raw, ok := v["allOf"].([]any); ok {
			merged := mergeSubschemas(raw)
			merged = mergeWithParent(v, merged)
			return flattenAllOf(merged)
		}
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = flattenAllOf(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = flattenAllOf(item)
		}
		return out
	default:
		return obj
	}
}

// mergeSubschemas folds the members of an allOf array into one schema:
// properties and patternProperties merge key-wise with later entries
// winning, required and initialize are unioned, any other key is
// overridden by later entries. Nested allOf inside a member is flattened
// first.
func mergeSubschemas(subs []any) map[string]any {
	merged := make(map[string]any)
	required := make(map[string]bool)
	initialize := make(map[string]bool)

	for _, raw := range subs {
		subMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		sub := flattenAllOf(subMap).(map[string]any)

		mergeKeywise(merged, sub, "properties")
		mergeKeywise(merged, sub, "patternProperties")
		for _, k := range Fragment(sub).Required() {
			required[k] = true
		}
		for _, k := range Fragment(sub).Initialize() {
			initialize[k] = true
		}
		for k, val := range sub {
			switch k {
			case "properties", "patternProperties", "required", "initialize", "allOf":
			default:
				merged[k] = val
			}
		}
	}

	if len(required) > 0 {
		merged["required"] = sortedAnySlice(required)
	}
	if len(initialize) > 0 {
		merged["initialize"] = sortedAnySlice(initialize)
	}
	return merged
}

// mergeWithParent applies the parent's own sibling keys on top of the
// flattened allOf result; parent keys take final precedence, except that
// required/initialize union and property maps merge.
func mergeWithParent(parent, merged map[string]any) map[string]any {
	for k, v := range parent {
		switch k {
		case "allOf":
		case "required", "initialize":
			set := make(map[string]bool)
			for _, name := range Fragment(merged).stringList(k) {
				set[name] = true
			}
			for _, name := range Fragment(parent).stringList(k) {
				set[name] = true
			}
			if len(set) > 0 {
				merged[k] = sortedAnySlice(set)
			}
		case "properties", "patternProperties":
			mergeKeywise(merged, parent, k)
		default:
			merged[k] = v
		}
	}
	return merged
}

func mergeKeywise(dst, src map[string]any, key string) {
	srcMap, ok := src[key].(map[string]any)
	if !ok || len(srcMap) == 0 {
		return
	}
	dstMap, ok := dst[key].(map[string]any)
	if !ok {
		dstMap = make(map[string]any, len(srcMap))
		dst[key] = dstMap
	}
	for k, v := range srcMap {
		dstMap[k] = v
	}
}

func sortedAnySlice(set map[string]bool) []any {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]any, len(names))
	for i, name := range names {
		out[i] = name
	}
	return out
}

func listJSON(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
