// Package notify sends e-mail about failed runs
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/notify"
)

// Params for the e-mail notifications
type Params struct {
	SMTPHost     string
	SMTPPort     int
	SMTPTLS      bool
	SMTPUsername string
	SMTPPassword string
	SMTPTimeout  time.Duration
	FromEmail    string
	ToEmails     []string
	HostName     string
}

// Service sends failure notifications
type Service struct {
	destinations []notify.Notifier
	fromEmail    string
	toEmail      []string
	hostName     string
}

// Failure describes a failed run
type Failure struct {
	Routes []string
	Err    error
	TS     time.Time
}

const errorTmpl = `<!DOCTYPE html>
<html>
<head>
	<meta name="viewport" content="width=device-width" />
	<meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
	<style type="text/css">
		body { font-family: "Arial"; font-size: 1.0em; }
		pre { padding: 0.6em; font-size: 0.7em; background-color: #E8E2A0; white-space: pre-wrap; word-wrap: break-word; }
		.bold { color: #882828; font-weight: 900; }
	</style>
</head>
<body>
	<p>dur2work run failed on <span class="bold">{{.Host}}</span> at {{.TS.Format "2006-01-02T15:04:05Z07:00"}}</p>
	<ul>
	{{range .Routes}}<li>Route: <span class="bold">{{.}}</span></li>
	{{end}}</ul>
	<pre>{{.Error}}</pre>
</body>
</html>
`

// NewService makes notification service, returns nil if no recipients defined
func NewService(p Params) *Service {
	if len(p.ToEmails) == 0 {
		return nil
	}
	email := notify.NewEmail(notify.SMTPParams{
		Host:        p.SMTPHost,
		Port:        p.SMTPPort,
		TLS:         p.SMTPTLS,
		ContentType: "text/html",
		Charset:     "UTF-8",
		Username:    p.SMTPUsername,
		Password:    p.SMTPPassword,
		TimeOut:     p.SMTPTimeout,
	})
	from := p.FromEmail
	if from == "" {
		from = "dur2work@" + p.HostName
	}
	return &Service{destinations: []notify.Notifier{email}, fromEmail: from, toEmail: p.ToEmails, hostName: p.HostName}
}

// OnError sends failure e-mail to all recipients
func (s *Service) OnError(ctx context.Context, f Failure) error {
	text, err := s.MakeErrorHTML(f)
	if err != nil {
		return err
	}
	return s.Send(ctx, "dur2work failed on "+s.hostName, text)
}

// MakeErrorHTML renders failure message
func (s *Service) MakeErrorHTML(f Failure) (string, error) {
	t, err := template.New("err").Parse(errorTmpl)
	if err != nil {
		return "", fmt.Errorf("can't parse error template: %w", err)
	}

	data := struct {
		Host   string
		TS     time.Time
		Routes []string
		Error  string
	}{Host: s.hostName, TS: f.TS, Routes: f.Routes, Error: fmt.Sprintf("%v", f.Err)}
	if data.TS.IsZero() {
		data.TS = time.Now()
	}

	buf := bytes.Buffer{}
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("can't execute error template: %w", err)
	}
	return buf.String(), nil
}

// Send message with given subject to all destinations
func (s *Service) Send(ctx context.Context, subj, text string) error {
	for _, dest := range s.destinations {
		if dest.Schema() != "mailto" {
			continue
		}
		q := url.Values{}
		q.Set("from", s.fromEmail)
		q.Set("subject", subj)
		to := "mailto:" + strings.Join(s.toEmail, ",") + "?" + q.Encode()
		log.Printf("[DEBUG] send %q to %v", subj, s.toEmail)
		if err := dest.Send(ctx, to, text); err != nil {
			return err
		}
	}
	return nil
}
