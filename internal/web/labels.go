package web

import "sort"

// Labels holds the user-visible text for one locale.
type Labels struct {
	Lang     string
	Title    string
	ButtonA  string
	ButtonB  string
	Pressed  string
	Released string
}

// State returns the label for a pressed flag.
func (l Labels) State(pressed bool) string {
	if pressed {
		return l.Pressed
	}
	return l.Released
}

var locales = map[string]Labels{
	"en": {
		Lang:     "en",
		Title:    "Buttons",
		ButtonA:  "Button A",
		ButtonB:  "Button B",
		Pressed:  "Pressed",
		Released: "Released",
	},
	"pt": {
		Lang:     "pt",
		Title:    "Botões",
		ButtonA:  "Botão A",
		ButtonB:  "Botão B",
		Pressed:  "Pressionado",
		Released: "Liberado",
	},
}

// LookupLabels returns the labels for lang.
func LookupLabels(lang string) (Labels, bool) {
	l, ok := locales[lang]
	return l, ok
}

// Langs returns the supported locale names in sorted order.
func Langs() []string {
	out := make([]string, 0, len(locales))
	for k := range locales {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
