package bybit

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

// decodeJSONBody reads and JSON-decodes a request body in test HTTP handlers.
func decodeJSONBody(t *testing.T, r *http.Request, out interface{}) {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}
