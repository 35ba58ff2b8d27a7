package aster

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeJSONBody(t *testing.T, r *http.Request, out interface{}) {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}
