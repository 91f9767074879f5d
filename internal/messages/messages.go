package messages

import (
	"fmt"
	"strings"
	"time"

	"github.com/luxentry/lux-entry-bot/internal/receipt"
)

const ParseModeHTML = "HTML"

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

func ErrorDefault() string {
	return "🚫 <b>Fehler</b>\nBitte versuche es erneut."
}

func ErrorUnknownCommand() string {
	return "❓ <b>Befehl nicht gefunden</b>"
}

func InvalidLink() string {
	return "❌ Ungültiger Model-Link. Bitte prüfe deinen Zugangslink."
}

func UseStartLink() string {
	return "🔗 Bitte starte über deinen persönlichen Zugangslink."
}

func Welcome(firstName, welcomeText string) string {
	greeting := fmt.Sprintf("👋 <b>Willkommen, %s!</b>", Escape(firstName))
	if strings.TrimSpace(welcomeText) != "" {
		greeting = greeting + "\n\n" + Escape(welcomeText)
	}
	return greeting + "\n\nBitte bestätige zunächst dein Alter, um fortzufahren."
}

func BtnAgeConfirm() string { return "✅ Ich bin über 18" }
func BtnAgeDeny() string    { return "❌ Ich bin unter 18" }

func AgeRejected() string {
	return "❌ Dieser Zugang ist nur für Personen über 18 Jahren. Der Vorgang wurde beendet."
}

func RulesPrompt(rulesText string) string {
	msg := "Super! ✨ Bitte bestätige auch, dass du unsere Gruppenregeln gelesen hast:"
	if strings.TrimSpace(rulesText) != "" {
		msg = msg + "\n\n" + Escape(rulesText)
	}
	return msg
}

func BtnRulesAccept() string  { return "📜 Regeln gelesen ✅" }
func BtnRulesDecline() string { return "❌ Ablehnen" }

func RulesRejected() string {
	return "❌ Ohne Zustimmung zu den Gruppenregeln ist kein Zugang möglich. Der Vorgang wurde beendet."
}

// ChecklistItem renders one required receipt signal as a user-facing line, so
// instructions and rejections enumerate exactly the same checklist.
func ChecklistItem(sig receipt.Signal, price, recipient string) string {
	switch sig {
	case receipt.SignalSentPhrase:
		return "Der Screenshot muss den Text \"Geld gesendet\" enthalten"
	case receipt.SignalDateTime:
		return "Datum und Uhrzeit sichtbar (z. B. \"Juli 11, 10:12 AM\")"
	case receipt.SignalFriendsFamily:
		return "\"Freunde und Familie\" muss angezeigt werden"
	case receipt.SignalAmount:
		return fmt.Sprintf("Betrag <b>-%s €</b>", Escape(price))
	case receipt.SignalRecipient:
		return fmt.Sprintf("Die Zahlung muss an <b>%s</b> erfolgt sein ✅", Escape(recipient))
	case receipt.SignalTransactionID:
		return "Transaktionsnummer wie z. B. 1WC88058A3980530G"
	}
	return ""
}

func PaymentInstructions(price, recipient string) string {
	var sb strings.Builder
	sb.WriteString("🔐 Um Zugang zu erhalten, sende bitte einen Screenshot <b>aus deinem PayPal-Zahlungsverlauf</b>. Wichtig:\n")
	for _, sig := range receipt.AllSignals() {
		sb.WriteString("\n- " + ChecklistItem(sig, price, recipient))
	}
	sb.WriteString("\n\n📸 <b>Nur Screenshots direkt aus dem Verlauf</b> sind gültig!")
	return sb.String()
}

func NoTextDetected() string {
	return "❌ Kein Text erkannt. Bitte sende den Screenshot erneut."
}

func ScreenshotInvalid(price, recipient string, missing []receipt.Signal) string {
	var sb strings.Builder
	sb.WriteString("⚠️ Screenshot ungültig.\n\nFolgende Punkte fehlen oder sind nicht sichtbar:\n")
	for _, sig := range missing {
		sb.WriteString("\n- " + ChecklistItem(sig, price, recipient))
	}
	sb.WriteString("\n\n📸 Nur Screenshots <b>direkt aus dem PayPal-Verlauf</b> werden akzeptiert.")
	return sb.String()
}

func PaymentAccepted(price, recipient string) string {
	return fmt.Sprintf("✅ Zahlung über <b>%s €</b> an <b>%s</b> erkannt! Zugang wird vorbereitet.", Escape(price), Escape(recipient))
}

func GroupAccess(link string) string {
	return fmt.Sprintf("💬 Hier ist dein exklusiver Zugang: %s", Escape(link))
}

func SelfieRequest() string {
	return "📸 Bitte sende jetzt ein Selfie, auf dem du gut erkennbar bist. Dieses wird nur intern zur Altersprüfung gespeichert."
}

func SelfieReceived() string {
	return "✅ Selfie erhalten, danke!"
}

func ProcessingFailed() string {
	return "🚫 Fehler beim Verarbeiten des Screenshots."
}

func ExpiryReminder(validUntil time.Time, daysLeft int) string {
	day := "Tagen"
	if daysLeft == 1 {
		day = "Tag"
	}
	return fmt.Sprintf(
		"⏰ Dein VIP-Zugang läuft in %d %s ab (am %s).\n\nSende einfach einen neuen Zahlungs-Screenshot, um zu verlängern.",
		daysLeft, day, validUntil.Format("02.01.2006"),
	)
}
