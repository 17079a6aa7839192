package email

import (
	"bytes"
	"fmt"
	htemplate "html/template"
	ttemplate "text/template"
)

type reauthorizeData struct {
	Mailbox  string
	Provider string
}

var reauthorizeHTML = htemplate.Must(htemplate.New("reauthorize").Parse(`<!doctype html>
<html>
  <body style="font-family: sans-serif; color: #222;">
    <h2>Action required: reconnect your mailbox</h2>
    <p>We could no longer access <strong>{{.Mailbox}}</strong> ({{.Provider}}).
    The authorization was revoked or expired, so transaction emails from this
    mailbox are no longer being processed.</p>
    <p>Open the app and connect the mailbox again to resume.</p>
  </body>
</html>`))

var reauthorizeText = ttemplate.Must(ttemplate.New("reauthorize").Parse(
	`Action required: reconnect your mailbox

We could no longer access {{.Mailbox}} ({{.Provider}}). The authorization was
revoked or expired, so transaction emails from this mailbox are no longer
being processed.

Open the app and connect the mailbox again to resume.
`))

// Notifier composes and sends credential lifecycle notices.
type Notifier struct {
	sender Sender
}

func NewNotifier(sender Sender) *Notifier {
	if sender == nil {
		sender = NopSender{}
	}
	return &Notifier{sender: sender}
}

// ReauthorizationRequired tells the account holder that a connected mailbox
// stopped working and needs to be authorized again.
func (n *Notifier) ReauthorizationRequired(to, mailbox, provider string) error {
	data := reauthorizeData{Mailbox: mailbox, Provider: provider}

	var html, text bytes.Buffer
	if err := reauthorizeHTML.Execute(&html, data); err != nil {
		return fmt.Errorf("render reauthorize html: %w", err)
	}
	if err := reauthorizeText.Execute(&text, data); err != nil {
		return fmt.Errorf("render reauthorize text: %w", err)
	}

	subject := fmt.Sprintf("Reconnect your %s mailbox", provider)
	return n.sender.Send(to, subject, html.String(), text.String())
}
