package fetch

import (
	"bytes"
	"io"
	"net/http/httputil"

	jsoniter "github.com/json-iterator/go"
)

// Unset is returned by ExtractCount when the field is missing or not a
// number.
const Unset = -1

var countPath = []interface{}{"data", "user", "edge_followed_by", "count"}

// SplitResponse separates the header block from the body of a raw HTTP
// response. It looks for "\r\n\r\n" first and falls back to "\n\n". When no
// delimiter exists the whole buffer is returned as the body and head is nil.
func SplitResponse(raw []byte) (head, body []byte) {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return raw[:i], raw[i+4:]
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return raw[:i], raw[i+2:]
	}
	return nil, raw
}

func isChunked(head []byte) bool {
	for _, line := range bytes.Split(head, []byte("\n")) {
		k, v, ok := bytes.Cut(bytes.TrimSpace(line), []byte(":"))
		if !ok {
			continue
		}
		if bytes.EqualFold(bytes.TrimSpace(k), []byte("Transfer-Encoding")) &&
			bytes.Contains(bytes.ToLower(v), []byte("chunked")) {
			return true
		}
	}
	return false
}

// ExtractCount parses body as JSON and reads data.user.edge_followed_by.count.
// A body that is not valid JSON yields ErrParse; a missing or non-numeric
// field yields Unset.
func ExtractCount(body []byte) (int64, error) {
	body = bytes.TrimSpace(body)
	if !jsoniter.Valid(body) {
		return Unset, ErrParse
	}

	v := jsoniter.Get(body, countPath...)
	if v.ValueType() != jsoniter.NumberValue {
		return Unset, nil
	}
	return v.ToInt64(), nil
}

// Clamp maps n into [0, limit].
func Clamp(n int64, limit int) int {
	if n < 0 {
		return 0
	}
	if n > int64(limit) {
		return limit
	}
	return int(n)
}

// ParseCount turns a complete raw response into a clamped follower count.
func ParseCount(raw []byte, limit int) (int, error) {
	head, body := SplitResponse(raw)

	if isChunked(head) {
		dechunked, err := io.ReadAll(httputil.NewChunkedReader(bytes.NewReader(body)))
		if err != nil && len(dechunked) == 0 {
			return 0, wrap(ErrParse, err)
		}
		body = dechunked
	}

	n, err := ExtractCount(body)
	if err != nil {
		return 0, err
	}
	return Clamp(n, limit), nil
}
