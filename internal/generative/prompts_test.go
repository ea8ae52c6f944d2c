package generative

import (
	"strings"
	"testing"

	"github.com/tbourn/doktorai-backend/internal/domain"
)

func TestDisclaimerAndFallback_PerLanguage(t *testing.T) {
	if !strings.HasPrefix(Disclaimer(domain.LanguageTR), "ÖNEMLI UYARI:") {
		t.Fatalf("tr disclaimer = %q", Disclaimer(domain.LanguageTR))
	}
	if !strings.HasPrefix(Disclaimer(domain.LanguageEN), "IMPORTANT DISCLAIMER:") {
		t.Fatalf("en disclaimer = %q", Disclaimer(domain.LanguageEN))
	}
	if Fallback(domain.LanguageTR) != fallbackTR || Fallback(domain.LanguageEN) != fallbackEN {
		t.Fatalf("fallback strings mismatch")
	}
	// Unknown languages behave like the default.
	if Fallback("de") != fallbackTR || Disclaimer("") != disclaimerTR {
		t.Fatalf("unknown language should use tr strings")
	}
	if !strings.Contains(Fallback(domain.LanguageTR), "ÖNEMLI UYARI") {
		t.Fatalf("tr fallback must carry the warning")
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("ateş düşürücü bitkiler?", domain.LanguageTR)
	if !strings.HasPrefix(p, "Sen DoktorAi'sin") {
		t.Fatalf("tr prompt should start with persona: %q", p)
	}
	if !strings.Contains(p, `"`+disclaimerTR+`"`) {
		t.Fatalf("tr prompt should quote the disclaimer")
	}
	if !strings.HasSuffix(p, "\n\nKullanıcı sorusu: ateş düşürücü bitkiler?") {
		t.Fatalf("tr prompt suffix mismatch: %q", p)
	}

	en := BuildPrompt("chamomile?", domain.LanguageEN)
	if !strings.HasPrefix(en, "You are DoktorAi") || !strings.Contains(en, "Never diagnose") {
		t.Fatalf("en prompt mismatch: %q", en)
	}
	if !strings.HasSuffix(en, "\n\nKullanıcı sorusu: chamomile?") {
		t.Fatalf("en prompt uses the shared question label: %q", en)
	}
}
