package api

import (
	_ "embed"
	"net/http"
	"strings"

	"themis-assess/internal/auth"
)

//go:embed openapi.yaml
var openAPIDocument string

const (
	docsSpecPath     = "/openapi.yaml"
	docsRedirectPath = "/docs/oauth2-redirect.html"
)

// SpecHandler serves the embedded OpenAPI document bound to the Okta issuer.
func SpecHandler(oktaIssuer string) http.HandlerFunc {
	doc := []byte(strings.ReplaceAll(openAPIDocument, "{oktaIssuer}", oktaIssuer))
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(doc)
	}
}

// SwaggerHandler serves the API explorer. Sign-in uses the authorization code
// flow with PKCE for clientID, so no secret reaches the browser.
func SwaggerHandler(clientID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := strings.NewReplacer(
			"{{specURL}}", docsSpecPath,
			"{{redirectURL}}", requestScheme(r)+"://"+r.Host+docsRedirectPath,
			"{{clientID}}", clientID,
			"{{scopes}}", strings.Join(auth.AllScopes, " "),
		).Replace(swaggerPage)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	}
}

// OAuthRedirectHandler hands the authorization response back to the explorer.
func OAuthRedirectHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(redirectPage))
}

func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

const swaggerPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <title>Themis Assessments API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist/swagger-ui-bundle.js"></script>
  <script>
  window.onload = function () {
    const ui = SwaggerUIBundle({
      url: "{{specURL}}",
      dom_id: "#swagger-ui",
      presets: [SwaggerUIBundle.presets.apis],
      oauth2RedirectUrl: "{{redirectURL}}",
      persistAuthorization: true,
    });
    ui.initOAuth({
      clientId: "{{clientID}}",
      scopes: "{{scopes}}",
      usePkceWithAuthorizationCodeGrant: true,
    });
    window.ui = ui;
  };
  </script>
</body>
</html>`

const redirectPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8" /><title>Signing in</title></head>
<body>
<script>
if (window.opener && window.opener.swaggerUIRedirectCallback) {
  window.opener.swaggerUIRedirectCallback(window.location.href);
}
window.close();
</script>
</body>
</html>`
