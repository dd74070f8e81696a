package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePrunesEmptyContainers(t *testing.T) {
	v, err := Normalize(map[string]any{
		"a": map[string]any{},
		"b": nil,
		"c": 1,
		"d": map[string]any{"e": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"c": float64(1)}, v)

	v, err = Normalize(map[string]any{"a": nil})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestNormalizeStructUsesJSONTags(t *testing.T) {
	type entry struct {
		UID  string `json:"uid"`
		Room string `json:"roomCode,omitempty"`
	}
	v, err := Normalize(entry{UID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"uid": "u1"}, v)
}

func TestServerTimestampResolves(t *testing.T) {
	v, err := Normalize(map[string]any{"ts": ServerTimestamp, "name": "x"})
	require.NoError(t, err)
	require.True(t, HasServerValues(v))

	v = ResolveServerValues(v, 1234)
	assert.False(t, HasServerValues(v))
	assert.Equal(t, map[string]any{"ts": float64(1234), "name": "x"}, v)
}

func TestSetAtCreatesAndPrunes(t *testing.T) {
	root := SetAt(nil, []string{"a", "b", "c"}, "x")
	assert.Equal(t, "x", GetAt(root, []string{"a", "b", "c"}))

	root = SetAt(root, []string{"a", "d"}, float64(2))
	root = SetAt(root, []string{"a", "b", "c"}, nil)
	assert.Equal(t, map[string]any{"a": map[string]any{"d": float64(2)}}, root)

	root = SetAt(root, []string{"a", "d"}, nil)
	assert.Nil(t, root)
}

func TestSetAtReplacesScalarWithMap(t *testing.T) {
	root := SetAt(map[string]any{"a": "leaf"}, []string{"a", "b"}, "x")
	assert.Equal(t, map[string]any{"a": map[string]any{"b": "x"}}, root)
}

func TestGetAtMissing(t *testing.T) {
	root := map[string]any{"a": "leaf"}
	assert.Nil(t, GetAt(root, []string{"b"}))
	assert.Nil(t, GetAt(root, []string{"a", "b"}))
	assert.Equal(t, root, GetAt(root, nil))
}

func TestNormalizeFieldsRejectsOverlap(t *testing.T) {
	_, err := NormalizeFields(map[string]any{"a": 1, "a-x": 2, "a/b": 3})
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = NormalizeFields(map[string]any{"": 1})
	assert.ErrorIs(t, err, ErrInvalidPath)

	out, err := NormalizeFields(map[string]any{"a/b": 1, "/a/c/": nil})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a/b": float64(1), "a/c": nil}, out)
}

func TestApplyFields(t *testing.T) {
	node := map[string]any{"status": "waiting", "guest": "empty"}
	out := ApplyFields(node, map[string]any{"status": "playing", "guest": nil, "state/turn": "x"})
	assert.Equal(t, map[string]any{
		"status": "playing",
		"state":  map[string]any{"turn": "x"},
	}, out)
}

func TestCloneIsDeep(t *testing.T) {
	orig := map[string]any{"a": map[string]any{"b": []any{"c"}}}
	cp := Clone(orig).(map[string]any)
	cp["a"].(map[string]any)["b"].([]any)[0] = "z"
	assert.Equal(t, "c", orig["a"].(map[string]any)["b"].([]any)[0])
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, []string{"rooms", "ABCD"}, Split("/rooms//ABCD/"))
	assert.Equal(t, "rooms/ABCD/state", Join("rooms", "ABCD/state"))
	assert.True(t, Related([]string{"rooms"}, []string{"rooms", "ABCD"}))
	assert.True(t, Related([]string{"rooms", "ABCD"}, []string{"rooms"}))
	assert.False(t, Related([]string{"rooms", "ABCD"}, []string{"rooms", "WXYZ"}))

	assert.NoError(t, ValidateKey("ABCD"))
	for _, bad := range []string{"", "a.b", "a#", "$x", "a[0]"} {
		assert.ErrorIs(t, ValidateKey(bad), ErrInvalidPath, bad)
	}
}

func TestDecode(t *testing.T) {
	var out struct {
		Name string `json:"name"`
		TS   int64  `json:"ts"`
	}
	require.NoError(t, Decode(map[string]any{"name": "x", "ts": float64(42)}, &out))
	assert.Equal(t, "x", out.Name)
	assert.Equal(t, int64(42), out.TS)
}

func TestNewKeyIsOrdered(t *testing.T) {
	a := NewKey()
	b := NewKey()
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}

func TestDispatcherRunsInOrder(t *testing.T) {
	var d Dispatcher
	done := make(chan []int, 1)
	var got []int
	for i := 0; i < 50; i++ {
		d.Submit(func() { got = append(got, i) })
	}
	d.Submit(func() { done <- got })
	result := <-done
	require.Len(t, result, 50)
	for i, v := range result {
		assert.Equal(t, i, v)
	}
}

func TestDispatcherStopDropsQueued(t *testing.T) {
	var d Dispatcher
	started := make(chan struct{})
	block := make(chan struct{})
	ran := make(chan struct{}, 2)
	d.Submit(func() { close(started); <-block; ran <- struct{}{} })
	d.Submit(func() { ran <- struct{}{} })
	<-started
	d.Stop()
	close(block)
	<-ran
	assert.True(t, d.Stopped())
	assert.Empty(t, ran)
}
