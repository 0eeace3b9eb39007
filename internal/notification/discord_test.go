package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscord(t *testing.T) {
	var got []DiscordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var msg DiscordMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		got = append(got, msg)
		if strings.HasSuffix(r.URL.Path, "/broken") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL+"/errors", srv.URL+"/ok", srv.Client())
	require.NoError(t, d.Error(context.Background(), "predictor ndvi: no usable scenes"))
	require.NoError(t, d.Success(context.Background(), strings.Repeat("x", 5000)))

	require.Len(t, got, 2)
	assert.Equal(t, colorRed, got[0].Embeds[0].Color)
	assert.Contains(t, got[0].Embeds[0].Description, "no usable scenes")
	assert.LessOrEqual(t, len([]rune(got[1].Embeds[0].Description)), maxDescription+1)

	broken := NewDiscord(srv.URL+"/broken", "", srv.Client())
	assert.Error(t, broken.Error(context.Background(), "boom"))
	assert.NoError(t, broken.Success(context.Background(), "no webhook configured"))
	assert.Len(t, got, 3)
}
