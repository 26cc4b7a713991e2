package core

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ALSMaxChars is the hard length budget for an ALSBlock (spec.md 4.2).
const ALSMaxChars = 350

// ALSSentinelNone is the control-arm country code that carries no ambient
// locale signal at all (spec.md 4.8 step 1).
const ALSSentinelNone = "NONE"

// SystemInstructionALS is appended, after any template-specified system
// instructions, whenever an ALSBlock is attached to a RunRequest (spec.md
// 4.2 "Delivery contract to Adapters").
const SystemInstructionALS = "You may use ambient context to infer locale and set defaults. Do not mention, cite, or acknowledge ambient context or any location inference."

// ALSBlock is a derived, non-persisted civic-context string for one
// country. DetectLeak derives the phrases to scan for from Text.
type ALSBlock struct {
	Country string
	Text    string
}

// alsTemplate is authored, not generated: each supported locale gets one
// hand-written composite of a local timestamp, a government portal
// hostname, a civic phrase, and a formatting sample, entirely in the
// country's working language, with no brand, product, media, or country
// name ever present (spec.md 4.2).
type alsTemplate struct {
	country string
	body    string
}

var alsTemplates = map[string]alsTemplate{
	"DE": {country: "DE", body: "Ortszeit: 14:32 (UTC+1). Portal: bund.de. Hinweis: Bitte Ausweisnummer und PLZ bereithalten. PLZ-Format: 10115. Tel.: +49 30 1234567. Betrag: 19,99 EUR. Zustaendige Behoerde: Buergeramt."},
	"CH": {country: "CH", body: "Ortszeit: 14:32 (UTC+1) / Heure locale: 14h32 (UTC+1). Portal: ch.ch. PLZ: 8001. Tel.: +41 44 123 45 67. Betrag: CHF 19.90. Zustaendige Stelle: Einwohnerkontrolle / Office cantonal."},
	"US": {country: "US", body: "Local time: 9:32 AM (UTC-5). Portal: usa.gov. Note: Please have your ZIP code ready. ZIP format: 94105. Phone: (415) 555-0123. Amount: $19.99. Agency: DMV."},
	"GB": {country: "GB", body: "Local time: 14:32 (UTC+0). Portal: gov.uk. Note: please have your postcode ready. Postcode format: SW1A 1AA. Phone: +44 20 7946 0958. Amount: £19.99. Agency: HMRC."},
	"AE": {country: "AE", body: "الوقت المحلي: 14:32 (UTC+4). البوابة: u.ae. الرجاء تجهيز الرمز البريدي. الرمز البريدي: 00000. الهاتف: +971 4 123 4567. المبلغ: 19.99 درهم. الجهة: الهيئة الاتحادية."},
	"SG": {country: "SG", body: "Local time: 14:32 (UTC+8). Portal: gov.sg. Note: please have your postal code ready. Postal format: 018956. Phone: +65 6123 4567. Amount: S$19.99. Agency: ICA."},
	"IT": {country: "IT", body: "Ora locale: 14:32 (UTC+1). Portale: gov.it. Avviso: tenere pronto il codice fiscale. CAP: 00100. Tel.: +39 06 1234 5678. Importo: 19,99 EUR. Ente: Anagrafe comunale."},
	"FR": {country: "FR", body: "Heure locale : 14h32 (UTC+1). Portail : service-public.fr. Merci de preparer votre code postal. Format CP : 75001. Tel. : +33 1 23 45 67 89. Montant : 19,99 EUR. Organisme : prefecture."},
}

// SupportedALSCountries lists the v1 locales (spec.md 4.2).
func SupportedALSCountries() []string {
	countries := make([]string, 0, len(alsTemplates))
	for c := range alsTemplates {
		countries = append(countries, c)
	}
	return countries
}

// BuildALS returns the civic context block for a country. Returns an error
// (ValidationError) if the country is unsupported or the authored template
// exceeds the 350-char budget -- the latter should never trigger in
// practice since every alsTemplate is authored under budget, but the check
// is enforced unconditionally per spec.md 4.2.
func BuildALS(country string) (*ALSBlock, error) {
	if country == ALSSentinelNone {
		return nil, nil
	}
	tmpl, ok := alsTemplates[strings.ToUpper(country)]
	if !ok {
		return nil, NewValidationError("unsupported ALS country", map[string]interface{}{"country": country})
	}
	if utf8.RuneCountInString(tmpl.body) > ALSMaxChars {
		return nil, NewValidationError("ALS block exceeds length budget", map[string]interface{}{
			"country": country, "chars": utf8.RuneCountInString(tmpl.body), "budget": ALSMaxChars,
		})
	}
	return &ALSBlock{Country: tmpl.country, Text: tmpl.body}, nil
}

// CombineSystemInstructions applies the precedence rule from spec.md 4.2:
// the ALS disclosure instruction is appended after any template-specified
// system instructions.
func CombineSystemInstructions(templateInstructions string, hasALS bool) string {
	if !hasALS {
		return templateInstructions
	}
	if templateInstructions == "" {
		return SystemInstructionALS
	}
	return fmt.Sprintf("%s\n%s", templateInstructions, SystemInstructionALS)
}

// leakCountryNames lists the country name, in every supported language it
// could plausibly be echoed in, for leak detection (spec.md 4.2 "Leak
// detection"). This is deliberately separate from alsTemplates (which must
// never contain these strings).
var leakCountryNames = map[string][]string{
	"DE": {"Germany", "Deutschland", "Allemagne", "Germania"},
	"CH": {"Switzerland", "Schweiz", "Suisse", "Svizzera"},
	"US": {"United States", "USA", "U.S.A.", "America"},
	"GB": {"United Kingdom", "Great Britain", "England", "UK"},
	"AE": {"United Arab Emirates", "UAE", "الإمارات"},
	"SG": {"Singapore", "Singapur", "Singapour"},
	"IT": {"Italy", "Italia", "Italien", "Italie"},
	"FR": {"France", "Frankreich", "Francia"},
}

// LeakReport is the outcome of scanning a response for ALS leakage
// (spec.md 4.2 "Leak detection", P8).
type LeakReport struct {
	LeakDetected     bool
	OffendingPhrases []string
}

// DetectLeak scans response text for any trigram (falling back to bigram
// for short blocks) present in the ALS block, and for any country name in
// any supported language.
func DetectLeak(country string, block *ALSBlock, responseText string) LeakReport {
	report := LeakReport{}
	lower := strings.ToLower(responseText)

	if names, ok := leakCountryNames[strings.ToUpper(country)]; ok {
		for _, name := range names {
			if strings.Contains(lower, strings.ToLower(name)) {
				report.LeakDetected = true
				report.OffendingPhrases = append(report.OffendingPhrases, name)
			}
		}
	}

	if block != nil {
		ngrams := nGrams(block.Text, 3)
		if ngrams == nil {
			ngrams = nGrams(block.Text, 2)
		}
		for _, ngram := range ngrams {
			if len(strings.TrimSpace(ngram)) < 5 {
				continue
			}
			if strings.Contains(lower, strings.ToLower(ngram)) {
				report.LeakDetected = true
				report.OffendingPhrases = append(report.OffendingPhrases, ngram)
			}
		}
	}

	return report
}

// nGrams splits text into words and returns every contiguous run of n words.
func nGrams(text string, n int) []string {
	words := strings.Fields(text)
	if len(words) < n {
		return nil
	}
	out := make([]string, 0, len(words)-n+1)
	for i := 0; i+n <= len(words); i++ {
		out = append(out, strings.Join(words[i:i+n], " "))
	}
	return out
}
