package pathutil

import (
	"errors"
	"net/http"
	"strings"
)

// ErrInvalidParam is returned for a missing or malformed path parameter.
var ErrInvalidParam = errors.New("invalid path parameter")

const maxParamLen = 64

// Param returns the named path wildcard of r, trimmed. Only letters,
// digits, '-' and '_' are accepted.
//
//	// mux.Handle("POST /admin/providers/{id}/reset", h)
//	id, err := pathutil.Param(r, "id")
func Param(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.PathValue(name))
	if v == "" || len(v) > maxParamLen {
		return "", ErrInvalidParam
	}
	for _, c := range v {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return "", ErrInvalidParam
		}
	}
	return v, nil
}
