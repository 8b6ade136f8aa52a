package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/clinic-api/internal/config"
	"github.com/jwalitptl/clinic-api/internal/model"
)

type Service interface {
	SendDischargeSummary(ctx context.Context, to, patientName string, summary model.VisitDischargedPayload) error
}

// Dialer sends composed messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

const dischargeSubject = "Your visit summary"

var dischargeTemplate = template.Must(template.New("discharge").Parse(`Dear {{.Name}},

You were discharged on {{.Summary.DischargeTime.Format "2 Jan 2006 15:04"}}.
{{if .Summary.Diagnosis}}
Diagnosis: {{.Summary.Diagnosis}}
{{end}}{{if .Summary.TreatmentPlan}}
Treatment plan: {{.Summary.TreatmentPlan}}
{{end}}{{if .Summary.Medications}}
Medications:
{{range .Summary.Medications}}  - {{.Name}} {{.Dose}}, {{.Frequency}} for {{.Duration}}
{{end}}{{end}}
Visit reference: {{.Summary.VisitID}}
`))

type smtpService struct {
	dialer Dialer
	from   string
}

func NewSMTPService(cfg config.SMTPConfig) Service {
	return NewServiceWithDialer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password), cfg.From)
}

func NewServiceWithDialer(d Dialer, from string) Service {
	return &smtpService{dialer: d, from: from}
}

func (s *smtpService) SendDischargeSummary(ctx context.Context, to, patientName string, summary model.VisitDischargedPayload) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("recipient address is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := RenderDischargeSummary(patientName, summary)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", to, patientName)
	m.SetHeader("Subject", dischargeSubject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send discharge summary: %w", err)
	}
	return nil
}

func RenderDischargeSummary(patientName string, summary model.VisitDischargedPayload) (string, error) {
	var buf bytes.Buffer
	err := dischargeTemplate.Execute(&buf, struct {
		Name    string
		Summary model.VisitDischargedPayload
	}{patientName, summary})
	if err != nil {
		return "", fmt.Errorf("failed to render discharge summary: %w", err)
	}
	return buf.String(), nil
}

type logService struct {
	logger zerolog.Logger
}

// NewLogService is used when SMTP is not configured. It logs instead of
// sending.
func NewLogService(logger zerolog.Logger) Service {
	return &logService{logger: logger.With().Str("component", "email").Logger()}
}

func (s *logService) SendDischargeSummary(_ context.Context, to, _ string, summary model.VisitDischargedPayload) error {
	s.logger.Info().
		Str("to", to).
		Str("visit_id", summary.VisitID.String()).
		Msg("smtp disabled, discharge summary not sent")
	return nil
}
