package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

// Message is a rendered subject/body pair ready for Send.
type Message struct {
	Subject string
	Body    string
}

var (
	welcomeTmpl = template.Must(template.New("welcome").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 500px; margin: 0 auto; padding: 20px;">
  <h2>Welcome to LumiChess!</h2>
  <p>Hi {{.Firstname}},</p>
  <p>Thanks for joining LumiChess. We're glad to have you.</p>
  <div style="background: #FEF3C7; border-left: 4px solid #F59E0B; padding: 15px; margin: 20px 0;">
    <strong>Important:</strong>
    <p style="margin: 8px 0 0 0;">Please verify your email within <strong>{{.GraceDays}} days</strong> to keep your account active. Head to Settings to verify.</p>
  </div>
  <p>Ready to level up your chess?</p>
  <p>The LumiChess team</p>
</div>`))

	codeTmpl = template.Must(template.New("code").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 500px; margin: 0 auto; padding: 20px;">
  <h2>LumiChess</h2>
  <p>Hi {{.Firstname}},</p>
  <p>{{.Lead}}</p>
  <div style="background: #f3f4f6; padding: 20px; text-align: center; border-radius: 10px; margin: 20px 0;">
    <span style="font-size: 32px; font-weight: bold; letter-spacing: 8px;">{{.Code}}</span>
  </div>
  <p>This code expires in {{.TTLMinutes}} minutes.</p>
</div>`))

	verifiedTmpl = template.Must(template.New("verified").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 500px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #10B981;">Email verified!</h2>
  <p>Hi {{.Firstname}},</p>
  <p>Your LumiChess account is now fully active.</p>
  <div style="background: #f0f4ff; padding: 15px; border-radius: 10px; margin: 20px 0; text-align: center;">
    <p style="margin: 0; color: #666;">Your player ID:</p>
    <p style="font-size: 24px; font-weight: bold; margin: 10px 0;">{{.ExternalID}}</p>
  </div>
  <p>Ready to level up your chess?</p>
  <p>The LumiChess team</p>
</div>`))

	deletedTmpl = template.Must(template.New("deleted").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 500px; margin: 0 auto; padding: 20px;">
  <h2>LumiChess</h2>
  <p>Hi {{.Firstname}},</p>
  <p>{{.Reason}}</p>
  <p>You're welcome to create a new account at any time.</p>
  <p>The LumiChess team</p>
</div>`))
)

func render(t *template.Template, data any) string {
	var buf bytes.Buffer
	// templates are parsed at init; execution only fails on bad data types
	if err := t.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}

// WelcomeMessage greets a new password-registered account and flags the
// verification grace window.
func WelcomeMessage(firstname string, graceDays int) Message {
	return Message{
		Subject: "Welcome to LumiChess!",
		Body: render(welcomeTmpl, map[string]any{
			"Firstname": firstname,
			"GraceDays": graceDays,
		}),
	}
}

// FederatedWelcomeMessage greets an account created through a federated
// identity; its email is verified from the start.
func FederatedWelcomeMessage(firstname, externalID string) Message {
	return Message{
		Subject: "Welcome to LumiChess!",
		Body: render(verifiedTmpl, map[string]any{
			"Firstname":  firstname,
			"ExternalID": externalID,
		}),
	}
}

// VerificationCodeMessage carries an email-verification code.
func VerificationCodeMessage(firstname, code string, ttlMinutes int) Message {
	return Message{
		Subject: "Verify your LumiChess account",
		Body: render(codeTmpl, map[string]any{
			"Firstname":  firstname,
			"Lead":       "Your verification code:",
			"Code":       code,
			"TTLMinutes": ttlMinutes,
		}),
	}
}

// VerifiedMessage confirms a completed email verification.
func VerifiedMessage(firstname, externalID string) Message {
	return Message{
		Subject: "Email verified",
		Body: render(verifiedTmpl, map[string]any{
			"Firstname":  firstname,
			"ExternalID": externalID,
		}),
	}
}

// ResetCodeMessage carries a password-reset code.
func ResetCodeMessage(firstname, code string, ttlMinutes int) Message {
	return Message{
		Subject: "Reset your LumiChess password",
		Body: render(codeTmpl, map[string]any{
			"Firstname":  firstname,
			"Lead":       "Your password reset code:",
			"Code":       code,
			"TTLMinutes": ttlMinutes,
		}),
	}
}

// DeletedMessage confirms an explicit account deletion.
func DeletedMessage(firstname string) Message {
	return Message{
		Subject: "Your LumiChess account has been deleted",
		Body: render(deletedTmpl, map[string]any{
			"Firstname": firstname,
			"Reason":    "Your LumiChess account has been permanently deleted and all your data erased.",
		}),
	}
}

// ReapedMessage notifies an unverified account removed after the grace period.
func ReapedMessage(firstname string, graceDays int) Message {
	return Message{
		Subject: "Your LumiChess account has been deleted",
		Body: render(deletedTmpl, map[string]any{
			"Firstname": firstname,
			"Reason": fmt.Sprintf(
				"Your LumiChess account was deleted because the email address was not verified within %d days.",
				graceDays),
		}),
	}
}
