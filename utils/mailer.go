package utils

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"gopkg.in/gomail.v2"

	"taskflow/config"
)

// Mailer delivers a rendered HTML message to one recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPMailer sends through the configured SMTP server
type SMTPMailer struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:     cfg.FromEmail,
		fromName: "TaskFlow",
	}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.fromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}

// Embedded email templates
var emailTemplates = map[string]string{
	"deadline_reminder": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; }
        .task { background: #f5f7fa; padding: 12px 16px; border-radius: 4px; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; }
    </style>
</head>
<body>
    <div class="header"><h2>{{.Subject}}</h2></div>
    <div class="content">
        <p>Hi {{.Name}},</p>
        <p>A task assigned to you is due soon:</p>
        <div class="task">
            <strong>{{.TaskTitle}}</strong><br>
            Project: {{.ProjectName}}<br>
            Deadline: {{.Deadline}}<br>
            Priority: {{.Priority}}
        </div>
        {{if .Link}}<p><a href="{{.Link}}">Open the board</a></p>{{end}}
    </div>
    <div class="footer">
        <p>© {{.Year}} TaskFlow</p>
    </div>
</body>
</html>`,
}

// DeadlineReminder is the data rendered into a reminder e-mail
type DeadlineReminder struct {
	Subject     string
	Name        string
	TaskTitle   string
	ProjectName string
	Deadline    string
	Priority    string
	Link        string
	Year        int
}

// RenderEmail renders one of the embedded templates.
func RenderEmail(name string, data interface{}) (string, error) {
	tmplContent, ok := emailTemplates[name]
	if !ok {
		return "", fmt.Errorf("template '%s' not found", name)
	}
	tmpl, err := template.New(name).Parse(tmplContent)
	if err != nil {
		return "", fmt.Errorf("error parsing template: %w", err)
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("error executing template: %w", err)
	}
	return body.String(), nil
}

// RenderDeadlineReminder fills in the subject and year before rendering.
func RenderDeadlineReminder(r DeadlineReminder) (subject, body string, err error) {
	if r.Subject == "" {
		r.Subject = fmt.Sprintf("Reminder: \"%s\" is due %s", r.TaskTitle, r.Deadline)
	}
	if r.Year == 0 {
		r.Year = time.Now().Year()
	}
	body, err = RenderEmail("deadline_reminder", r)
	return r.Subject, body, err
}
