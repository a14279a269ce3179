package authserver

import (
	"html/template"
	"io"
)

// Consent and code-display pages. These are deliberately minimal: the flow
// is driven by a human copying the authorization code out of the browser,
// so the pages only need to prompt and display.

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>Authorize {{.ClientName}}</title>
  <style>
    body { font-family: sans-serif; max-width: 480px; margin: 80px auto; }
    button { padding: 8px 24px; font-size: 1em; cursor: pointer; }
  </style>
</head>
<body>
  <h1>Authorization Request</h1>
  <p><strong>{{.ClientName}}</strong> is requesting access to your resources.</p>
  <form method="POST" action="/callback">
    <input type="hidden" name="client_id" value="{{.ClientID}}">
    <button type="submit">Verify</button>
  </form>
</body>
</html>
`))

var codeTemplate = template.Must(template.New("code").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>Authorization Code</title>
  <style>
    body { font-family: sans-serif; max-width: 480px; margin: 80px auto; }
    code { font-size: 1.2em; background: #eee; padding: 4px 8px; }
  </style>
</head>
<body>
  <h1>Authorization Granted</h1>
  <p>Provide this code to the application:</p>
  <p><code>{{.Code}}</code></p>
</body>
</html>
`))

type consentPageData struct {
	ClientID   string
	ClientName string
}

type codePageData struct {
	Code string
}

func renderConsentPage(w io.Writer, clientID, clientName string) error {
	if clientName == "" {
		clientName = clientID
	}
	return consentTemplate.Execute(w, consentPageData{
		ClientID:   clientID,
		ClientName: clientName,
	})
}

func renderCodePage(w io.Writer, code string) error {
	return codeTemplate.Execute(w, codePageData{Code: code})
}
