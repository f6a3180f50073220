package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeNonFinite(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"untouched", `{"confidence":0.5}`, `{"confidence":0.5}`},
		{"nan", `{"confidence":NaN}`, `{"confidence":null}`},
		{"infinities", `[Infinity,-Infinity]`, `[null,null]`},
		{"inside string", `{"name":"NaN Infinity","c":NaN}`, `{"name":"NaN Infinity","c":null}`},
		{"escaped quote", `{"name":"a\"NaN","c":1}`, `{"name":"a\"NaN","c":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(sanitizeNonFinite([]byte(tt.in))))
		})
	}
}

func TestDecodeResponse_MissingTopK(t *testing.T) {
	t.Parallel()
	resp, err := decodeResponse([]byte(`{"species_name":"Nepenthes rajah","confidence":0.8}` + "\n"))
	require.NoError(t, err)
	assert.Nil(t, resp.TopK)
	assert.Equal(t, "Nepenthes rajah", resp.SpeciesName)
}

func TestEncodeRequest(t *testing.T) {
	t.Parallel()
	line, err := encodeRequest(Request{Image: "/tmp/a.jpg", TopK: 3})
	require.NoError(t, err)
	assert.Equal(t, `{"image":"/tmp/a.jpg","topk":3}`+"\n", string(line))
}

func TestStderrTailKeepsNewestBytes(t *testing.T) {
	t.Parallel()
	tail := newStderrTail(8)

	_, err := tail.Write([]byte("abcdef"))
	require.NoError(t, err)
	_, err = tail.Write([]byte("ghij"))
	require.NoError(t, err)
	assert.Equal(t, "cdefghij", tail.String())
	assert.Equal(t, "cdefghij", tail.String(), "reading does not consume")

	_, err = tail.Write([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, "23456789", tail.String())
}

func TestIsRecord(t *testing.T) {
	t.Parallel()
	assert.True(t, isRecord([]byte("  {\"a\":1}\n")))
	assert.False(t, isRecord([]byte("loading model\n")))
	assert.False(t, isRecord([]byte("\n")))
}
