package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/storepulse/internal/domain"
	"github.com/jonesrussell/storepulse/internal/provider"
)

func TestHTTPClient_Measure(t *testing.T) {
	var gotBody map[string]string
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"performance": 91,
			"lcp": 2.4,
			"themeAssetSize": 1830.5,
			"diagnosticPayload": {"scripts": ["analytics.js"]}
		}`))
	}))
	defer srv.Close()

	client := provider.NewHTTPClient(provider.Config{
		BaseURL: srv.URL,
		APIKey:  "key-1",
	})

	result, err := client.Measure(context.Background(), "https://shop.example", domain.DeviceTypeMobile)
	require.NoError(t, err)

	assert.Equal(t, "Bearer key-1", gotAuth)
	assert.Equal(t, "https://shop.example", gotBody["url"])
	assert.Equal(t, "mobile", gotBody["strategy"])

	assert.True(t, result.Success)
	require.NotNil(t, result.Performance)
	assert.InDelta(t, 91, *result.Performance, 1e-9)
	assert.NotEmpty(t, result.DiagnosticPayload)

	vec := result.MetricVector()
	require.NotNil(t, vec.PageWeight)
	assert.InDelta(t, 1830.5, *vec.PageWeight, 1e-9)
	assert.Nil(t, vec.CLS)
}

func TestHTTPClient_Measure_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := provider.NewHTTPClient(provider.Config{BaseURL: srv.URL})

	_, err := client.Measure(context.Background(), "https://shop.example", domain.DeviceTypeDesktop)
	assert.Error(t, err)
}
