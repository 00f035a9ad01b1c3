package synthesis

// DefaultLanguage is used when a request names no language
const DefaultLanguage = "en-us"

// Language is a selectable synthesis language
type Language struct {
	Label string `json:"label"`
	Code  string `json:"code"`
}

// Languages lists the supported languages in display order, default first
var Languages = []Language{
	{Label: "English (US)", Code: "en-us"},
	{Label: "Spanish", Code: "es"},
	{Label: "French", Code: "fr"},
	{Label: "German", Code: "de"},
	{Label: "Italian", Code: "it"},
}

// LanguageCodes maps display labels to language codes
func LanguageCodes() map[string]string {
	codes := make(map[string]string, len(Languages))
	for _, l := range Languages {
		codes[l.Label] = l.Code
	}
	return codes
}

// IsSupportedLanguage reports whether code is one of Languages
func IsSupportedLanguage(code string) bool {
	for _, l := range Languages {
		if l.Code == code {
			return true
		}
	}
	return false
}
