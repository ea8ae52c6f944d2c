package services

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbourn/doktorai-backend/internal/domain"
)

// ErrUnknownPlan is returned for a plan id outside the catalog.
var ErrUnknownPlan = errors.New("unknown premium plan")

// Plan is one subscription offer, priced in the currency of its language.
type Plan struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	Currency     string          `json:"currency"`
	DurationDays int             `json:"duration_days"`
}

// Catalog is the premium screen content for one language.
type Catalog struct {
	Language        domain.Language `json:"language"`
	Plans           []Plan          `json:"plans"`
	FreeFeatures    []string        `json:"free_features"`
	PremiumFeatures []string        `json:"premium_features"`
	IsPremium       bool            `json:"is_premium"`
}

// UpgradeResult is the answer to an upgrade request. No purchase is made;
// billing runs in the app stores.
type UpgradeResult struct {
	AlreadyPremium bool   `json:"already_premium"`
	Message        string `json:"message"`
}

type catalogText struct {
	currency                 string
	monthly, yearly          string
	monthlyName, yearlyName  string
	free, premium            []string
	alreadyPremium, purchase string
}

var premiumText = map[domain.Language]catalogText{
	domain.LanguageTR: {
		currency:    "TRY",
		monthly:     "29.99",
		yearly:      "269.99",
		monthlyName: "Aylık",
		yearlyName:  "Yıllık",
		free: []string{
			"Günde 10 soru",
			"Sadece metin sorular",
			"Temel bitkisel öneriler",
			"Reklam destekli",
		},
		premium: []string{
			"Sınırsız soru",
			"Sesli mesaj desteği",
			"Fotoğraf analizi",
			"Gelişmiş bitkisel veritabanı",
			"Çevrimdışı erişim",
			"Reklamsız deneyim",
			"Öncelikli destek",
			"Kişiselleştirilmiş öneriler",
		},
		alreadyPremium: "Zaten Premium üyesiniz!",
		purchase:       "Premium abonelikler mobil uygulama mağazası üzerinden satın alınır. Lütfen uygulamadaki Abone Ol seçeneğini kullanın.",
	},
	domain.LanguageEN: {
		currency:    "USD",
		monthly:     "9.99",
		yearly:      "89.99",
		monthlyName: "Monthly",
		yearlyName:  "Yearly",
		free: []string{
			"10 questions per day",
			"Text questions only",
			"Basic herbal suggestions",
			"Ad-supported",
		},
		premium: []string{
			"Unlimited questions",
			"Voice message support",
			"Photo analysis",
			"Advanced herbal database",
			"Offline access",
			"Ad-free experience",
			"Priority support",
			"Personalized recommendations",
		},
		alreadyPremium: "You are already a Premium member!",
		purchase:       "Premium subscriptions are purchased through the mobile app store. Please use the Subscribe option in the app.",
	},
}

// PremiumService serves the plan catalog and the upgrade stub.
type PremiumService struct {
	Now func() time.Time
}

// NewPremiumService returns a PremiumService using the wall clock.
func NewPremiumService() *PremiumService { return &PremiumService{Now: time.Now} }

// Catalog returns the plans and feature lists in lang for profile.
func (s *PremiumService) Catalog(lang domain.Language, profile *domain.UserProfile) Catalog {
	lang = lang.OrDefault()
	t := premiumText[lang]
	monthly := decimal.RequireFromString(t.monthly)
	yearly := decimal.RequireFromString(t.yearly)
	return Catalog{
		Language: lang,
		Plans: []Plan{
			{ID: "monthly", Name: t.monthlyName, Price: monthly, MonthlyPrice: monthly, Currency: t.currency, DurationDays: 30},
			// Per-month price is truncated to cents.
			{ID: "yearly", Name: t.yearlyName, Price: yearly, MonthlyPrice: yearly.Div(decimal.NewFromInt(12)).Truncate(2), Currency: t.currency, DurationDays: 365},
		},
		FreeFeatures:    append([]string(nil), t.free...),
		PremiumFeatures: append([]string(nil), t.premium...),
		IsPremium:       profile != nil && profile.PremiumActive(s.Now()),
	}
}

// Upgrade answers an upgrade request for planID.
func (s *PremiumService) Upgrade(lang domain.Language, profile *domain.UserProfile, planID string) (UpgradeResult, error) {
	if planID != "monthly" && planID != "yearly" {
		return UpgradeResult{}, ErrUnknownPlan
	}
	t := premiumText[lang.OrDefault()]
	if profile != nil && profile.PremiumActive(s.Now()) {
		return UpgradeResult{AlreadyPremium: true, Message: t.alreadyPremium}, nil
	}
	return UpgradeResult{Message: t.purchase}, nil
}
