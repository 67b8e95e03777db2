package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpecHandler_SubstitutesIssuer(t *testing.T) {
	rec := httptest.NewRecorder()
	SpecHandler("https://example.okta.com/oauth2/default")(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://example.okta.com/oauth2/default")
	assert.NotContains(t, rec.Body.String(), "{oktaIssuer}")
}

func TestSwaggerHandler(t *testing.T) {
	t.Run("plain http", func(t *testing.T) {
		rec := httptest.NewRecorder()
		SwaggerHandler("swagger-client")(rec, httptest.NewRequest(http.MethodGet, "http://localhost:8080/docs", nil))

		body := rec.Body.String()
		assert.Contains(t, body, `clientId: "swagger-client"`)
		assert.Contains(t, body, "assessment:write")
		assert.Contains(t, body, `"http://localhost:8080/docs/oauth2-redirect.html"`)
		assert.NotContains(t, body, "{{")
	})

	t.Run("behind a TLS proxy", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://themis.example.com/docs", nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		rec := httptest.NewRecorder()
		SwaggerHandler("swagger-client")(rec, req)
		assert.Contains(t, rec.Body.String(), `"https://themis.example.com/docs/oauth2-redirect.html"`)
	})
}
