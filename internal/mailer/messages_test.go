package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWelcomeMessageMentionsGraceWindow(t *testing.T) {
	m := WelcomeMessage("Marie", 6)
	assert.NotEmpty(t, m.Subject)
	assert.Contains(t, m.Body, "Marie")
	assert.Contains(t, m.Body, "6 days")
}

func TestCodeMessagesCarryCodeAndTTL(t *testing.T) {
	v := VerificationCodeMessage("Marie", "123456", 15)
	assert.Contains(t, v.Body, "123456")
	assert.Contains(t, v.Body, "15 minutes")

	r := ResetCodeMessage("Marie", "654321", 15)
	assert.Contains(t, r.Body, "654321")
	assert.Contains(t, r.Body, "15 minutes")
	assert.NotEqual(t, v.Subject, r.Subject)
}

func TestVerifiedMessageShowsPlayerID(t *testing.T) {
	m := VerifiedMessage("Marie", "87654321")
	assert.Contains(t, m.Body, "87654321")
}

func TestReapedMessageMentionsGracePeriod(t *testing.T) {
	m := ReapedMessage("Marie", 6)
	assert.Contains(t, m.Body, "Marie")
	assert.Contains(t, m.Body, "6")
}

func TestTemplatesEscapeHTML(t *testing.T) {
	m := WelcomeMessage(`<script>alert("x")</script>`, 6)
	assert.NotContains(t, m.Body, "<script>")
}
