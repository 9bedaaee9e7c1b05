package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-jsonrpc/protocol"
)

func TestSerializeV1Request(t *testing.T) {
	body, err := NewV1("subtract").WithArgument("first", 42).WithArgument("second", 23).Serialize()
	require.NoError(t, err)
	assert.Equal(t, `{"id":0,"jsonrpc":"1.0","method":"subtract","params":[42,23]}`, string(body))
}

func TestSerializeV2Request(t *testing.T) {
	body, err := NewV2("subtract").WithArgument("first", 42).WithArgument("second", 23).Serialize()
	require.NoError(t, err)
	assert.Equal(t, `{"id":0,"jsonrpc":"2.0","method":"subtract","params":{"first":42,"second":23}}`, string(body))
}

func TestSerializeV2PositionalRequest(t *testing.T) {
	body, err := NewV2Positional("subtract").WithArgument("", 42).WithArgument("", 23).Serialize()
	require.NoError(t, err)
	assert.Equal(t, `{"id":0,"jsonrpc":"2.0","method":"subtract","params":[42,23]}`, string(body))
}

func TestSerializeOmitsEmptyNamedParams(t *testing.T) {
	body, err := NewV2("ping").Serialize()
	require.NoError(t, err)
	assert.Equal(t, `{"id":0,"jsonrpc":"2.0","method":"ping"}`, string(body))

	body, err = NewV1("ping").Serialize()
	require.NoError(t, err)
	assert.Equal(t, `{"id":0,"jsonrpc":"1.0","method":"ping","params":[]}`, string(body))
}

func TestNamedParamsKeepInsertionOrder(t *testing.T) {
	req := NewV2("order")
	require.NoError(t, req.AddArgument("zulu", 1))
	require.NoError(t, req.AddArgument("alpha", 2))
	require.NoError(t, req.AddArgument("zulu", 3))

	body, err := req.Serialize()
	require.NoError(t, err)
	assert.Equal(t, `{"id":0,"jsonrpc":"2.0","method":"order","params":{"zulu":3,"alpha":2}}`, string(body))
}

func TestAddArgumentEncodeFailure(t *testing.T) {
	req := NewV2("bad")
	err := req.AddArgument("ch", make(chan int))
	require.Error(t, err)
	assert.True(t, protocol.IsCodec(err))

	_, err = NewV2("bad").WithArgument("ok", 1).WithArgument("ch", func() {}).WithArgument("later", 2).Serialize()
	require.Error(t, err)
	assert.True(t, protocol.IsCodec(err))
	assert.Contains(t, err.Error(), `"ch"`)
}

func TestSerializeEmptyMethod(t *testing.T) {
	_, err := NewV2("").Serialize()
	require.Error(t, err)
	assert.True(t, protocol.IsCodec(err))
	assert.ErrorIs(t, err, ErrEmptyMethod)
}

func TestRequestRoundTrip(t *testing.T) {
	requests := []*Request{
		NewV1("subtract").WithArgument("", 42).WithArgument("", 23),
		NewV2("subtract").WithArgument("first", 42).WithArgument("second", map[string]any{"n": []int{1, 2}}),
		NewV2Positional("echo").WithArgument("", "hello"),
		NewV2("ping"),
	}
	for _, req := range requests {
		body, err := req.Serialize()
		require.NoError(t, err)

		got, err := ParseRequest(body)
		require.NoError(t, err)
		assert.Equal(t, req.ID, got.ID)
		assert.Equal(t, req.Version, got.Version)
		assert.Equal(t, req.Method, got.Method)
		assert.Equal(t, req.Params, got.Params, string(body))
	}
}

func TestParseRequestVariants(t *testing.T) {
	got, err := ParseRequest([]byte(`{"method":"legacy","params":[1],"id":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, V1, got.Version)
	assert.Equal(t, StringID("abc"), got.ID)
	assert.Equal(t, ByPosition{json.RawMessage(`1`)}, got.Params)

	got, err = ParseRequest([]byte(`{"params":{"b":2,"a":1},"method":"m","jsonrpc":"2.0","id":7}`))
	require.NoError(t, err)
	assert.Equal(t, ByName{{"b", json.RawMessage(`2`)}, {"a", json.RawMessage(`1`)}}, got.Params)

	_, err = ParseRequest([]byte(`{"jsonrpc":"2.0","method":"m","params":5,"id":1}`))
	assert.True(t, protocol.IsCodec(err))

	_, err = ParseRequest([]byte(`{"jsonrpc":"3.0","method":"m","id":1}`))
	assert.True(t, protocol.IsCodec(err))

	_, err = ParseRequest([]byte(`{"jsonrpc":"2.0","id":1}`))
	assert.ErrorIs(t, err, ErrEmptyMethod)
}

func TestDecodeSuccessResponse(t *testing.T) {
	resp, err := DecodeResponse[int]([]byte(`{"jsonrpc":"2.0","result":19,"id":1}`))
	require.NoError(t, err)
	assert.Equal(t, NewV2Result(NumberID(1), 19), resp)

	result, err := resp.Payload.Result()
	require.NoError(t, err)
	assert.Equal(t, 19, result)
}

func TestDecodeErrorResponse(t *testing.T) {
	resp, err := DecodeResponse[struct{}]([]byte(`{"jsonrpc": "2.0", "error": {"code": -32601, "message": "Method not found"}, "id": "1"}`))
	require.NoError(t, err)
	assert.Equal(t, StringID("1"), resp.ID)

	_, remote := resp.Payload.Unwrap()
	require.NotNil(t, remote)
	assert.Equal(t, protocol.CodeMethodNotFound, remote.Code)
	assert.Equal(t, "Method not found", remote.Message)
}

func TestDecodeErrorWithNullResultInAnyOrder(t *testing.T) {
	docs := []string{
		`{"error":{"code":-6,"message":"Insufficient funds"},"result":null,"id":0}`,
		`{"result":null,"id":0,"error":{"code":-6,"message":"Insufficient funds"}}`,
		`{"id":0,"result":null,"error":{"message":"Insufficient funds","code":-6}}`,
	}
	for _, doc := range docs {
		resp, err := DecodeResponse[int64]([]byte(doc))
		require.NoError(t, err, doc)
		assert.Nil(t, resp.Version)

		_, err = resp.Payload.Result()
		require.Error(t, err)
		assert.True(t, protocol.IsProtocol(err))
		remote, ok := protocol.AsRemote(err)
		require.True(t, ok)
		assert.Equal(t, int64(-6), remote.Code)
	}
}

func TestDecodeMalformedEnvelopes(t *testing.T) {
	both, err := DecodeResponse[int]([]byte(`{"id":0,"result":1,"error":{"code":1,"message":"x"}}`))
	require.NoError(t, err)
	_, remote := both.Payload.Unwrap()
	require.NotNil(t, remote)
	assert.Equal(t, protocol.CodeInternalError, remote.Code)
	assert.Equal(t, protocol.MsgBothPresent, remote.Message)

	for _, doc := range []string{`{"id":0}`, `{"id":0,"jsonrpc":"2.0","error":null}`} {
		neither, err := DecodeResponse[int]([]byte(doc))
		require.NoError(t, err)
		_, remote = neither.Payload.Unwrap()
		require.NotNil(t, remote, doc)
		assert.Equal(t, protocol.CodeInternalError, remote.Code)
		assert.Equal(t, protocol.MsgNeitherPresent, remote.Message)
	}
}

func TestDecodeNullResultWithNullError(t *testing.T) {
	resp, err := DecodeResponse[*int]([]byte(`{"result":null,"error":null,"id":0}`))
	require.NoError(t, err)
	result, err := resp.Payload.Result()
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestDecodeNullResult(t *testing.T) {
	doc := []byte(`{"id":0,"jsonrpc":"2.0","result":null}`)

	_, err := DecodeResponse[int64](doc)
	require.Error(t, err)
	assert.True(t, protocol.IsCodec(err))

	ptr, err := DecodeResponse[*int64](doc)
	require.NoError(t, err)
	got, err := ptr.Payload.Result()
	require.NoError(t, err)
	assert.Nil(t, got)

	list, err := DecodeResponse[[]string](doc)
	require.NoError(t, err)
	assert.False(t, list.Payload.IsError())
}

func TestDecodeResponseFailures(t *testing.T) {
	for _, doc := range []string{
		`not json`,
		`{"id":0,"result":"nineteen"}`,
		`{"id":1.5,"result":1}`,
		`{"id":0,"jsonrpc":"9.9","result":1}`,
		`{"id":0,"error":"boom"}`,
		`{"id":0,"jsonrpc":"2.0","result":null}`,
	} {
		_, err := DecodeResponse[int]([]byte(doc))
		require.Error(t, err, doc)
		assert.True(t, protocol.IsCodec(err), doc)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	ok := NewV1Result(StringID("a"), []string{"x", "y"})
	data, err := json.Marshal(ok)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"a","jsonrpc":"1.0","result":["x","y"]}`, string(data))

	got, err := DecodeResponse[[]string](data)
	require.NoError(t, err)
	assert.Equal(t, ok, got)

	failed := NewV2Error[int](NumberID(3), &protocol.RemoteError{Code: -1, Message: "nope", Data: json.RawMessage(`{"k":1}`)})
	data, err = json.Marshal(failed)
	require.NoError(t, err)
	assert.Equal(t, `{"id":3,"jsonrpc":"2.0","error":{"code":-1,"message":"nope","data":{"k":1}}}`, string(data))

	back, err := DecodeResponse[int](data)
	require.NoError(t, err)
	assert.Equal(t, failed, back)
}

func TestIDEncoding(t *testing.T) {
	for _, tc := range []struct {
		id   ID
		wire string
	}{
		{NumberID(0), `0`},
		{NumberID(-12), `-12`},
		{StringID("1"), `"1"`},
		{ID{}, `null`},
	} {
		data, err := json.Marshal(tc.id)
		require.NoError(t, err)
		assert.Equal(t, tc.wire, string(data))

		var back ID
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, tc.id, back)
	}
	assert.True(t, ID{}.IsNull())
	n, ok := NumberID(4).Number()
	assert.True(t, ok)
	assert.Equal(t, int64(4), n)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("1")
	require.NoError(t, err)
	assert.Equal(t, V1, v)
	v, err = ParseVersion("2.0")
	require.NoError(t, err)
	assert.Equal(t, V2, v)
	_, err = ParseVersion("3")
	assert.Error(t, err)
}
