package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fixture entry types mirroring the hotel job schema used by the
// retrieved original source (kkharji/hotel-room-service-redis), kept here
// purely as codec test fixtures — not part of the reactor's public
// surface.

type loremRequest struct {
	Op    string `json:"op"`
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func (loremRequest) IsReactorEntry() {}

type author struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

type postRequest struct {
	Op      string `json:"op"`
	ID      int    `json:"id"`
	Content string `json:"content"`
	Author  author `json:"author"`
}

func (postRequest) IsReactorEntry() {}

type winRateRequest struct {
	Op   string  `json:"op"`
	Rate float64 `json:"rate"`
}

func (winRateRequest) IsReactorEntry() {}

type nestedOnly struct {
	Op     string `json:"op"`
	Detail author `json:"detail"`
}

func (nestedOnly) IsReactorEntry() {}

func fieldMap(pairs map[string]string) map[string][]byte {
	out := make(map[string][]byte, len(pairs))
	for k, v := range pairs {
		out[k] = []byte(v)
	}
	return out
}

// S1: decode enum-shaped fields with a stringified int leaf.
func TestDecode_StringifiedEnum(t *testing.T) {
	got, err := Decode[loremRequest](fieldMap(map[string]string{
		"op":    "createLorem",
		"type":  "sentences",
		"count": "100",
	}))
	require.NoError(t, err)
	assert.Equal(t, loremRequest{Op: "createLorem", Type: "sentences", Count: 100}, got)
}

// S2: decode with a nested object field given as a literal JSON string.
func TestDecode_NestedObjectField(t *testing.T) {
	got, err := Decode[postRequest](fieldMap(map[string]string{
		"op":      "createPost",
		"id":      "1",
		"content": "Hello World!",
		"author":  `{"name":"Bajix","tags":["Rustacean"]}`,
	}))
	require.NoError(t, err)
	assert.Equal(t, "Bajix", got.Author.Name)
	assert.Equal(t, []string{"Rustacean"}, got.Author.Tags)
}

// S3: a decimal leaf without a leading zero decodes to its numeric target.
func TestDecode_DecimalLeaf(t *testing.T) {
	got, err := Decode[winRateRequest](fieldMap(map[string]string{
		"op":   "setWinRate",
		"rate": ".5",
	}))
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Rate)
}

// S4: encode round-trips a nested object field and sorts keys by name.
func TestEncodeOrdered_NestedObjectSortedKeys(t *testing.T) {
	v := postRequest{
		Op:      "createPost",
		ID:      1,
		Content: "Hello World!",
		Author:  author{Name: "Bajix", Tags: []string{"Rustacean"}},
	}
	fields, err := EncodeOrdered(v)
	require.NoError(t, err)

	require.Len(t, fields, 4)
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"author", "content", "id", "op"}, names)

	byName := map[string]string{}
	for _, f := range fields {
		byName[f.Name] = f.Value
	}
	assert.Equal(t, `{"name":"Bajix","tags":["Rustacean"]}`, byName["author"])
	assert.Equal(t, "1", byName["id"])
}

// Property 1: decode(encode(v)) == v for a value with no null leaves.
func TestCodec_RoundTrip(t *testing.T) {
	v := postRequest{
		Op:      "createPost",
		ID:      42,
		Content: "round trip me",
		Author:  author{Name: "Bajix", Tags: []string{"Rustacean", "gopher"}},
	}
	encoded, err := Encode(v)
	require.NoError(t, err)

	raw := make(map[string][]byte, len(encoded))
	for k, val := range encoded {
		raw[k] = []byte(val)
	}

	decoded, err := Decode[postRequest](raw)
	require.NoError(t, err)
	assert.Equal(t, v, decoded)
}

// Property 2: dual acceptance — a native JSON object and a JSON-string-
// wrapped form of the same object decode identically.
func TestDecode_DualAcceptance(t *testing.T) {
	native, err := Decode[nestedOnly](fieldMap(map[string]string{
		"op":     "x",
		"detail": `{"name":"Bajix","tags":["Rustacean"]}`,
	}))
	require.NoError(t, err)

	doubleEncoded, err := Decode[nestedOnly](fieldMap(map[string]string{
		"op":     "x",
		"detail": `"{\"name\":\"Bajix\",\"tags\":[\"Rustacean\"]}"`,
	}))
	require.NoError(t, err)

	assert.Equal(t, native, doubleEncoded)
}

// Property 3: stringified integer and float fields decode to their
// numeric targets.
func TestDecode_StringifiedPrimitives(t *testing.T) {
	lorem, err := Decode[loremRequest](fieldMap(map[string]string{
		"op":    "createLorem",
		"type":  "paragraphs",
		"count": "7",
	}))
	require.NoError(t, err)
	assert.Equal(t, 7, lorem.Count)

	rate, err := Decode[winRateRequest](fieldMap(map[string]string{
		"op":   "setWinRate",
		"rate": "0.75",
	}))
	require.NoError(t, err)
	assert.Equal(t, 0.75, rate.Rate)
}

func TestDecode_InvalidUTF8(t *testing.T) {
	bad := map[string][]byte{"op": {0xff, 0xfe, 0xfd}}
	_, err := Decode[loremRequest](bad)
	require.Error(t, err)
}

type withPointer struct {
	Op    string  `json:"op"`
	Extra *string `json:"extra"`
}

func (withPointer) IsReactorEntry() {}

func TestEncode_OmitsNullLeaves(t *testing.T) {
	fields, err := EncodeOrdered(withPointer{Op: "x", Extra: nil})
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "op", fields[0].Name)
}
