package security

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/akcizas/internal/common"
)

func decodingHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var dst map[string]any
		if err := common.DecodeJSON(r, &dst); err != nil {
			common.WriteError(w, err)
			return
		}
		common.JSON(w, http.StatusOK, dst)
	})
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error common.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Error.Code
}

func TestBodyLimit(t *testing.T) {
	small := `{"products":[],"transport_total":5}`
	large := `{"products":[{"name":"Chianti Classico","abv":13.5,"volume":0.75}]}`

	cases := []struct {
		name          string
		body          string
		contentLength int64
		want          int
	}{
		{"within limit", small, int64(len(small)), http.StatusOK},
		{"declared too large", large, int64(len(large)), http.StatusRequestEntityTooLarge},
		{"streamed too large", large, -1, http.StatusRequestEntityTooLarge},
	}
	handler := BodyLimit{Max: 48}.Middleware(decodingHandler())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/recalculate/all", strings.NewReader(tc.body))
			req.ContentLength = tc.contentLength
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, tc.want, rr.Code)
			if tc.want != http.StatusOK {
				require.Equal(t, common.CodePayloadTooLarge, errorCode(t, rr))
			}
		})
	}
}

func TestBodyLimitDisabled(t *testing.T) {
	body := strings.Repeat(" ", 1024) + `{}`
	rr := httptest.NewRecorder()
	BodyLimit{}.Middleware(decodingHandler()).ServeHTTP(rr,
		httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)
}
