package generative

import (
	"fmt"

	"github.com/tbourn/doktorai-backend/internal/domain"
)

const (
	disclaimerTR = "ÖNEMLI UYARI: Bu öneriler yalnızca genel bilgi amaçlıdır ve profesyonel tıbbi tavsiyenin yerini tutmaz. Herhangi bir sağlık sorunu için mutlaka nitelikli bir sağlık uzmanına danışın."
	disclaimerEN = "IMPORTANT DISCLAIMER: These suggestions are for general information only and do not replace professional medical advice. Always consult with a qualified healthcare professional for any health concerns."

	preambleTR = "Sen DoktorAi'sin, doğal ve bitkisel tedavi önerilerinde bulunan bir asistan. Kullanıcının sorularına sadece genel bilgi ve geleneksel bitki kullanımı hakkında bilgi ver. Kesinlikle teşhis koymayacaksın ve tıbbi tavsiye vermeyeceksin. Her cevabının sonunda şu uyarıyı ekle: \"%s\""
	preambleEN = "You are DoktorAi, an assistant that provides natural and herbal treatment suggestions. Only provide general information about traditional plant uses. Never diagnose or give medical advice. Always end your response with: \"%s\""

	fallbackTR = "Üzgünüm, şu anda yanıt veremiyorum. Lütfen daha sonra tekrar deneyin. ÖNEMLI UYARI: Bu öneriler yalnızca genel bilgi amaçlıdır ve profesyonel tıbbi tavsiyenin yerini tutmaz."
	fallbackEN = "Sorry, I cannot respond right now. Please try again later. IMPORTANT DISCLAIMER: These suggestions are for general information only and do not replace professional medical advice."

	// questionLabel separates the preamble from the user's text. It is the
	// same for both languages.
	questionLabel = "\n\nKullanıcı sorusu: "
)

// Disclaimer returns the mandatory trailing disclaimer for lang.
func Disclaimer(lang domain.Language) string {
	if lang.OrDefault() == domain.LanguageEN {
		return disclaimerEN
	}
	return disclaimerTR
}

// Fallback returns the fixed reply used when the provider cannot answer.
func Fallback(lang domain.Language) string {
	if lang.OrDefault() == domain.LanguageEN {
		return fallbackEN
	}
	return fallbackTR
}

// Preamble returns the moderation instruction for lang, disclaimer included.
func Preamble(lang domain.Language) string {
	if lang.OrDefault() == domain.LanguageEN {
		return fmt.Sprintf(preambleEN, disclaimerEN)
	}
	return fmt.Sprintf(preambleTR, disclaimerTR)
}

// BuildPrompt wraps the user's text in the moderation preamble.
func BuildPrompt(userText string, lang domain.Language) string {
	return Preamble(lang) + questionLabel + userText
}
