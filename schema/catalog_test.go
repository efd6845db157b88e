package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discos/statuskit/errors"
)

func TestLoad_CommonTopics(t *testing.T) {
	cat, err := Load("testdata/schemas")
	require.NoError(t, err)

	assert.Equal(t, []string{"antenna", "weather"}, cat.Topics())
	assert.True(t, cat.HasTopic("antenna"))
	assert.False(t, cat.HasTopic("receiver"))
}

func TestLoad_TelescopeOverlay(t *testing.T) {
	cat, err := Load("testdata/schemas", WithTelescope("SRT"))
	require.NoError(t, err)

	assert.Equal(t, []string{"antenna", "receiver", "weather"}, cat.Topics())

	frag, ok := cat.Schema("receiver")
	require.True(t, ok)
	assert.Equal(t, "receiver", frag.Node())
}

func TestLoad_ResolutionIsComplete(t *testing.T) {
	cat, err := Load("testdata/schemas")
	require.NoError(t, err)

	for _, topic := range cat.Topics() {
		frag, ok := cat.Schema(topic)
		require.True(t, ok)
		assertNoKey(t, map[string]any(frag), "$ref")
		assertNoKey(t, map[string]any(frag), "allOf")
		_, hasDefs := frag["$defs"]
		assert.False(t, hasDefs, "topic %s still carries $defs", topic)
	}
}

func TestLoad_RefExpansion(t *testing.T) {
	cat, err := Load("testdata/schemas")
	require.NoError(t, err)

	antenna, ok := cat.Schema("antenna")
	require.True(t, ok)

	ts, ok := antenna.Property("timestamp")
	require.True(t, ok, "timestamp should be expanded in place")
	assert.Equal(t, "object", ts.Type())
	assert.Equal(t, "Timestamp", ts.Title())

	unix, ok := ts.Property("unix_time")
	require.True(t, ok)
	assert.Equal(t, "number", unix.Type())
	assert.Equal(t, "s", unix.Unit())
}

func TestLoad_AllOfFlattening(t *testing.T) {
	cat, err := Load("testdata/schemas")
	require.NoError(t, err)

	antenna, ok := cat.Schema("antenna")
	require.True(t, ok)

	pointing, ok := antenna.Property("pointing")
	require.True(t, ok)

	// Properties from both allOf members merged, required unioned.
	props := pointing.Properties()
	assert.Contains(t, props, "azimuth")
	assert.Contains(t, props, "elevation")
	assert.Contains(t, props, "epoch")
	assert.ElementsMatch(t, []string{"azimuth", "elevation", "epoch"}, pointing.Required())
	assert.Equal(t, "Horizontal coordinates", pointing.Title())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		root string
		want error
	}{
		{"missing root", "testdata/does-not-exist", errors.ErrSchemaNotFound},
		{"missing node field", "testdata/missingnode", errors.ErrMissingNode},
		{"unresolved ref", "testdata/badref", errors.ErrUnresolvedRef},
		{"reference cycle", "testdata/cyclic", errors.ErrRefCycle},
		{"ref escapes root", "testdata/escape", errors.ErrRefOutsideRoot},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Load(test.root)
			require.Error(t, err)
			assert.ErrorIs(t, err, test.want)
			assert.True(t, errors.IsFatal(err), "load errors must classify as fatal")
		})
	}
}

func TestLoad_CompileCheck(t *testing.T) {
	_, err := Load("testdata/schemas", WithCompileCheck(), WithTelescope("srt"))
	assert.NoError(t, err)
}

func TestLoad_UnknownTelescope(t *testing.T) {
	_, err := Load("testdata/schemas", WithTelescope("nonexistent"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSchemaNotFound)
}

func TestNormalizeRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		file    string
		want    string
		wantErr error
	}{
		{"fragment only", "#/$defs/coords", "common/antenna.json", "common/antenna.json#/$defs/coords", nil},
		{"root relative", "definitions/timestamp.json", "common/antenna.json", "definitions/timestamp.json", nil},
		{"parent relative", "../definitions/timestamp.json", "common/antenna.json", "definitions/timestamp.json", nil},
		{"parent relative with fragment", "../definitions/timestamp.json#/$defs/x", "common/antenna.json", "definitions/timestamp.json#/$defs/x", nil},
		{"escapes root", "../../etc/other.json", "common/antenna.json", "", errors.ErrRefOutsideRoot},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := normalizeRef(test.ref, test.file)
			if test.wantErr != nil {
				assert.ErrorIs(t, err, test.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestMergeSubschemas_LaterEntriesWin(t *testing.T) {
	subs := []any{
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "string"},
				"b": map[string]any{"type": "string"},
			},
			"required": []any{"a"},
		},
		map[string]any{
			"properties": map[string]any{
				"b": map[string]any{"type": "number"},
			},
			"required":   []any{"b"},
			"initialize": []any{"a"},
		},
	}

	merged := Fragment(mergeSubschemas(subs))
	b, ok := merged.Property("b")
	require.True(t, ok)
	assert.Equal(t, "number", b.Type(), "later allOf entry wins on key collision")
	assert.ElementsMatch(t, []string{"a", "b"}, merged.Required())
	assert.Equal(t, []string{"a"}, merged.Initialize())
}

func TestMergeWithParent_SiblingsTakePrecedence(t *testing.T) {
	doc := map[string]any{
		"title": "parent title",
		"allOf": []any{
			map[string]any{
				"title": "member title",
				"properties": map[string]any{
					"x": map[string]any{"type": "number"},
				},
			},
		},
	}

	flat := Fragment(flattenAllOf(doc).(map[string]any))
	assert.Equal(t, "parent title", flat.Title())
	_, ok := flat.Property("x")
	assert.True(t, ok)
	_, hasAllOf := flat["allOf"]
	assert.False(t, hasAllOf)
}

// assertNoKey walks a resolved document and fails if key appears anywhere.
func assertNoKey(t *testing.T, obj any, key string) {
	t.Helper()
	switch v := obj.(type) {
	case map[string]any:
		_, found := v[key]
		assert.False(t, found, "resolved document still contains %q", key)
		for _, val := range v {
			assertNoKey(t, val, key)
		}
	case []any:
		for _, item := range v {
			assertNoKey(t, item, key)
		}
	}
}
