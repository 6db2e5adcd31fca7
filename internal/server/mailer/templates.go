// Package mailer renders account emails and delivers them over SMTP.
package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// Kind selects the email template.
type Kind int

const (
	KindActivation Kind = iota + 1
	KindReactivation
	KindPasswordReset
)

func (k Kind) String() string {
	switch k {
	case KindActivation:
		return "activation"
	case KindReactivation:
		return "reactivation"
	case KindPasswordReset:
		return "password_reset"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Params fill a template. ActionURL carries the token; ValidFor is shown to
// the recipient as the link lifetime.
type Params struct {
	FirstName string
	ActionURL string
	ValidFor  time.Duration
}

type mailTemplate struct {
	subject string
	body    *template.Template
}

const layout = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <p>Hello{{if .FirstName}} {{.FirstName}}{{end}},</p>
  {{template "content" .}}
  <p style="margin: 24px 0;">
    <a href="{{.ActionURL}}" style="background: #c62828; color: #fff; padding: 10px 18px; text-decoration: none; border-radius: 4px;">{{template "button" .}}</a>
  </p>
  <p>If the button does not work, copy this link into your browser:<br>{{.ActionURL}}</p>
  <p>The link is valid for {{.ValidFor}}.</p>
  <p style="color: #777; font-size: 12px;">If you did not request this email you can ignore it.</p>
</body>
</html>`

func mustTemplate(name, content, button string) *template.Template {
	t := template.Must(template.New(name).Parse(layout))
	template.Must(t.New("content").Parse(content))
	template.Must(t.New("button").Parse(button))
	return t
}

var templates = map[Kind]mailTemplate{
	KindActivation: {
		subject: "Activate your account",
		body: mustTemplate("activation",
			`<p>Thank you for registering. Please confirm your email address to activate your account.</p>`,
			`Activate account`),
	},
	KindReactivation: {
		subject: "Your new activation link",
		body: mustTemplate("reactivation",
			`<p>You asked for a new activation link. Links sent earlier no longer work.</p>`,
			`Activate account`),
	},
	KindPasswordReset: {
		subject: "Reset your password",
		body: mustTemplate("password_reset",
			`<p>We received a request to reset the password of your account.</p>`,
			`Reset password`),
	},
}

type templateData struct {
	FirstName string
	ActionURL string
	ValidFor  string
}

// Render produces the subject and HTML body for kind.
func Render(kind Kind, p Params) (string, string, error) {
	tpl, ok := templates[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown mail kind %s", kind)
	}

	var buf bytes.Buffer
	data := templateData{
		FirstName: p.FirstName,
		ActionURL: p.ActionURL,
		ValidFor:  humanDuration(p.ValidFor),
	}
	if err := tpl.body.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", kind, err)
	}

	return tpl.subject, buf.String(), nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	}
	return d.String()
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
