package core

import (
	"bytes"
	htmltmpl "html/template"
	"net/mail"
	"strings"
)

var htmlBody = htmltmpl.Must(htmltmpl.New("body").Parse(
	`<html><body>{{range .Lines}}<p>{{.}}</p>{{end}}{{if .Link}}<p><a href="{{.Link}}">{{.Link}}</a></p>{{end}}</body></html>`,
))

type (
	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		BodyStr     string // simple text/plain content
		Link        string // optional call to action, appended to both contents

		// rendered contents
		TextContent string
		HTMLContent string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// Render fills TextContent and HTMLContent from BodyStr and Link.
func (m *EmailMessage) Render() error {
	if m.BodyStr == "" {
		return nil
	}
	m.TextContent = m.BodyStr
	if m.Link != "" {
		m.TextContent += "\n\n" + m.Link
	}

	var buff bytes.Buffer
	data := struct {
		Lines []string
		Link  string
	}{Lines: strings.Split(m.BodyStr, "\n"), Link: m.Link}
	if err := htmlBody.Execute(&buff, data); err != nil {
		return err
	}
	m.HTMLContent = buff.String()
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool { return (m.TextContent != "") || (m.HTMLContent != "") }
