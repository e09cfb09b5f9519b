package emailsvc

import (
	"bytes"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehmanpranto/QuizFlow/core"
)

func TestSendgridService_prepare(t *testing.T) {
	conf := core.NewTestConfig()
	conf.AppName = "QuizFlow"
	conf.Mail.DefaultFromName = "QuizFlow"
	conf.Mail.DefaultFromEmail = "noreply@quizflow.test"
	svc := NewSendgridService(conf, nil)

	billing := conf.BillingMailbox()
	payer := mail.Address{Name: "Rahim Uddin", Address: "rahim@quizflow.test"}

	t.Run("billing notification", func(t *testing.T) {
		msg := core.EmailMessage{
			To:           []mail.Address{billing},
			ReplyTo:      &payer,
			Subject:      "New payment to review: TRX1",
			TemplateName: "payment_admin_notification",
			TextContent:  "review me",
		}
		require.NoError(t, msg.Attach(bytes.NewReader([]byte("\x89PNG\r\n\x1a\n0000")), "screenshot-TRX1"))

		m := svc.prepare(msg)
		assert.Equal(t, "noreply@quizflow.test", m.From.Address)
		require.NotNil(t, m.ReplyTo)
		assert.Equal(t, payer.Address, m.ReplyTo.Address)
		require.Len(t, m.Personalizations, 1)
		assert.Equal(t, "[QuizFlow] New payment to review: TRX1", m.Personalizations[0].Subject)
		assert.Equal(t, billing.Address, m.Personalizations[0].To[0].Address)
		assert.Equal(t, []string{"payment_admin_notification", "billing"}, m.Categories)

		require.Len(t, m.Attachments, 1)
		at := m.Attachments[0]
		assert.Equal(t, "image/png", at.Type)
		assert.Equal(t, "screenshot-TRX1", at.Filename)
		assert.Equal(t, "attachment", at.Disposition)
		assert.Equal(t, msg.Attachments[0].Content.String(), at.Content)

		require.NotNil(t, m.MailSettings)
		require.NotNil(t, m.MailSettings.SandboxMode)
		assert.True(t, *m.MailSettings.SandboxMode.Enable, "test mode never delivers")
	})

	t.Run("payer receipt replies to billing", func(t *testing.T) {
		m := svc.prepare(core.EmailMessage{
			To:           []mail.Address{payer},
			ReplyTo:      &billing,
			Subject:      "We received your payment",
			TemplateName: "payment_received",
			TextContent:  "thanks",
			HTMLContent:  "<p>thanks</p>",
		})
		require.NotNil(t, m.ReplyTo)
		assert.Equal(t, billing.Address, m.ReplyTo.Address)
		assert.Contains(t, m.Categories, "billing")
		require.Len(t, m.Content, 2)
		assert.Equal(t, "text/plain", m.Content[0].Type)
		assert.Equal(t, "text/html", m.Content[1].Type)
		assert.Empty(t, m.Attachments)
	})

	t.Run("quiz result", func(t *testing.T) {
		m := svc.prepare(core.EmailMessage{
			To:           []mail.Address{payer},
			Subject:      "Your quiz result",
			TemplateName: "submission_result",
			TextContent:  "2/3",
		})
		assert.Nil(t, m.ReplyTo)
		assert.Equal(t, []string{"submission_result"}, m.Categories)
		assert.Empty(t, m.Personalizations[0].CC)
		assert.Empty(t, m.Personalizations[0].BCC)
	})

	t.Run("unknown content type", func(t *testing.T) {
		at := toSGAttachment(core.Attachment{Content: bytes.NewBufferString("AAAA"), Filename: "blob"})
		assert.Equal(t, "application/octet-stream", at.Type)
	})
}
