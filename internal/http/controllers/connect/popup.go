package connect

import "html/template"

type popupData struct {
	Type    string
	Message string
	Origin  string
}

// popupPage notifies the window that opened the consent popup. The message
// goes only to the configured origin; if no opener is present the page just
// shows the outcome.
var popupPage = template.Must(template.New("popup").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Mailbox authorization</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
  <p id="msg">{{.Message}}</p>
  <p>You can close this window.</p>
  <script>
    (function () {
      var payload = { type: {{.Type}}, message: {{.Message}} };
      if (window.opener) {
        window.opener.postMessage(payload, {{.Origin}});
        window.close();
      }
    })();
  </script>
</body>
</html>`))
