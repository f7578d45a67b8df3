package email

import (
	"context"
	"html"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/application/auth"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
	Insecure bool
}

type SMTPSender struct {
	lg  zerolog.Logger
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig, lg zerolog.Logger) *SMTPSender {
	return &SMTPSender{
		lg:  lg.With().Str("component", "smtp_sender").Logger(),
		cfg: cfg,
	}
}

func (s *SMTPSender) buildMsg(msg auth.Email) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, PermanentError{msg: "invalid from address: " + err.Error()}
	}
	if err := m.To(msg.To); err != nil {
		return nil, PermanentError{msg: "invalid to address: " + err.Error()}
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	m.AddAlternativeString(mail.TypeTextHTML, renderHTML(msg.Subject, msg.Body))
	return m, nil
}

func (s *SMTPSender) clientOptions() []mail.Option {
	tlsPolicy := mail.TLSMandatory
	if s.cfg.Insecure {
		tlsPolicy = mail.NoTLS
	}
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(tlsPolicy),
	}
	if s.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.cfg.Timeout))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

// Send delivers msg synchronously. Errors are PermanentError or TemporaryError.
func (s *SMTPSender) Send(ctx context.Context, msg auth.Email) error {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	m, err := s.buildMsg(msg)
	if err != nil {
		return err
	}

	c, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return PermanentError{msg: "smtp client init failed: " + err.Error()}
	}

	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		s.lg.Error().Err(err).Str("to", msg.To).Msg("smtp send failed")

		text := err.Error()
		if containsAny(text, "535", "5.7.8", "authentication", "Username and Password not accepted") {
			return PermanentError{msg: "smtp auth failed: " + text}
		}
		return TemporaryError{msg: "smtp transient failure: " + text}
	}

	s.lg.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("smtp send ok")
	return nil
}

// renderHTML turns the plain body into escaped paragraphs with clickable links.
func renderHTML(title, body string) string {
	var b strings.Builder
	b.WriteString(`<!doctype html>
<html>
  <body style="font-family:Arial,Helvetica,sans-serif; line-height:1.4;">
    <h2>` + html.EscapeString(title) + `</h2>
`)
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		esc := html.EscapeString(para)
		if strings.HasPrefix(para, "http://") || strings.HasPrefix(para, "https://") {
			b.WriteString(`    <p><a href="` + esc + `">` + esc + "</a></p>\n")
			continue
		}
		b.WriteString("    <p>" + strings.ReplaceAll(esc, "\n", "<br/>") + "</p>\n")
	}
	b.WriteString("  </body>\n</html>")
	return b.String()
}

func containsAny(s string, subs ...string) bool {
	for _, x := range subs {
		if x != "" && strings.Contains(s, x) {
			return true
		}
	}
	return false
}
