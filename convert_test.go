package flexconfig

import (
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePrimitiveCoversCommonTypes(t *testing.T) {
	check := func(expected any, raw string, targetType reflect.Type) {
		t.Helper()
		got, err := decodePrimitive(raw, targetType)
		if err != nil {
			t.Fatalf("decodePrimitive error: %v", err)
		}
		if !reflect.DeepEqual(got, expected) {
			t.Fatalf("expected %v (%T), got %v (%T)", expected, expected, got, got)
		}
	}
	check(true, "true", reflect.TypeOf(true))
	check(int64(42), "42", reflect.TypeOf(int64(0)))
	check(int8(-3), " -3 ", reflect.TypeOf(int8(0)))
	check(uint32(7), "7", reflect.TypeOf(uint32(0)))
	check(float32(3.14), "3.14", reflect.TypeOf(float32(0)))
	check(time.Second*5, "5s", reflect.TypeOf(time.Duration(0)))
	check([]byte("abc"), "abc", reflect.TypeOf([]byte(nil)))
	check("plain", "plain", reflect.TypeOf(""))
}

func TestDecodePrimitiveRejectsOverflow(t *testing.T) {
	if _, err := decodePrimitive("300", reflect.TypeOf(uint8(0))); err == nil {
		t.Fatal("expected overflow error")
	}
	if _, err := decodePrimitive("yes please", reflect.TypeOf(true)); err == nil {
		t.Fatal("expected bool parse error")
	}
}

func TestDecodeJSONStruct(t *testing.T) {
	type payload struct {
		Value string `json:"value"`
	}
	got, err := decodeJSON(`{"value":"hello"}`, reflect.TypeOf(payload{}))
	if err != nil {
		t.Fatalf("decodeJSON error: %v", err)
	}
	if got.(payload).Value != "hello" {
		t.Fatalf("expected hello, got %+v", got)
	}
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"1m30s":            90 * time.Second,
		"00:05:00":         5 * time.Minute,
		"01:02":            time.Hour + 2*time.Minute,
		"1.02:03:04":       26*time.Hour + 3*time.Minute + 4*time.Second,
		"00:00:01.5":       1500 * time.Millisecond,
		"00:00:00.0000001": 100 * time.Nanosecond,
		"-00:00:10":        -10 * time.Second,
		"2":                48 * time.Hour,
	}
	for raw, want := range cases {
		got, err := parseDuration(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	for _, raw := range []string{"", "abc", "25:00:00", "00:61:00", "1:2:3:4", "x.01:00:00"} {
		_, err := parseDuration(raw)
		assert.Error(t, err, raw)
	}
}

func TestConvertScalars(t *testing.T) {
	tree := treeOf(t, `{"port":"8080","ratio":0.25,"debug":"true","timeout":"00:00:30","ip":"10.0.0.1","name":"svc"}`)

	assert.Equal(t, 8080, As[int](tree.Child("port")))
	assert.Equal(t, uint16(8080), As[uint16](tree.Child("port")))
	assert.InDelta(t, 0.25, As[float64](tree.Child("ratio")), 1e-9)
	assert.True(t, As[bool](tree.Child("debug")))
	assert.Equal(t, 30*time.Second, As[time.Duration](tree.Child("timeout")))
	assert.Equal(t, net.ParseIP("10.0.0.1"), As[net.IP](tree.Child("ip")))

	name := As[*string](tree.Child("name"))
	require.NotNil(t, name)
	assert.Equal(t, "svc", *name)
}

func TestConvertFailuresYieldZeroOrFallback(t *testing.T) {
	tree := treeOf(t, `{"port":"http","nested":{"a":"1"}}`)

	assert.Equal(t, 0, As[int](tree.Child("port")))
	assert.Equal(t, 80, AsOr(tree.Child("port"), 80))
	assert.Equal(t, 5, AsOr(tree.Child("missing"), 5))
	assert.Equal(t, "", As[string](tree.Child("nested")))

	_, err := Convert[int](tree.Child("port"))
	assert.Error(t, err)
	_, err = Convert[string](tree.Child("missing"))
	assert.ErrorIs(t, err, errNoValue)
}

func TestConvertSlicesAndArrays(t *testing.T) {
	tree := treeOf(t, `{"ports":[80,443,8080],"hosts":["a","b"]}`)

	assert.Equal(t, []int{80, 443, 8080}, As[[]int](tree.Child("ports")))
	assert.Equal(t, [2]string{"a", "b"}, As[[2]string](tree.Child("hosts")))
	assert.Equal(t, [3]string{"a", "b", ""}, As[[3]string](tree.Child("hosts")))

	m := NewFlatMap()
	m.SetString("list:0", "x")
	m.SetString("list:2", "z")
	gapped := NewTree(m.Snapshot())
	assert.Equal(t, []string{"x"}, As[[]string](gapped.Child("list")))

	_, err := Convert[[]int](tree.Child("hosts"))
	assert.Error(t, err)
}

func TestConvertSliceFromJSONLeaf(t *testing.T) {
	m := NewFlatMap()
	m.SetString("ports", "[1,2,3]")
	tree := NewTree(m.Snapshot())
	assert.Equal(t, []int{1, 2, 3}, As[[]int](tree.Child("ports")))
}

func TestConvertMaps(t *testing.T) {
	tree := treeOf(t, `{"limits":{"read":10,"write":5},"byCode":{"200":"ok","404":"missing"}}`)

	assert.Equal(t, map[string]int{"read": 10, "write": 5}, As[map[string]int](tree.Child("limits")))
	assert.Equal(t, map[int]string{200: "ok", 404: "missing"}, As[map[int]string](tree.Child("byCode")))

	_, err := Convert[map[int]int](tree.Child("limits"))
	assert.Error(t, err)
}

func TestConvertTree(t *testing.T) {
	tree := treeOf(t, `{"a":{"b":"c"}}`)
	sub := As[Tree](tree.Child("a"))
	assert.Equal(t, "c", sub.Child("b").String())
}

func TestConvertStructUsesBind(t *testing.T) {
	type endpoint struct {
		Host string
		Port int
	}
	tree := treeOf(t, `{"primary":{"host":"db1","port":5432}}`)
	got, err := Convert[endpoint](tree.Child("primary"))
	require.NoError(t, err)
	assert.Equal(t, endpoint{Host: "db1", Port: 5432}, got)
}
