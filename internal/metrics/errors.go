package metrics

import (
	"strings"
	"unicode"
)

// transportAliases names the error types a GraphQL client commonly sees.
var transportAliases = map[string]string{
	"url.Error":                     "Request URL error",
	"net.OpError":                   "Network operation error",
	"net.DNSError":                  "DNS lookup error",
	"httpclient.RequestError":       "Request build error",
	"runner.PanicError":             "Requester panic",
	"context.deadlineExceededError": "Context deadline exceeded",
	"errors.errorString":            "Error",
	"fmt.wrapError":                 "Error",
}

// FriendlyErrorName returns a human-friendly label for a Go error type name
// such as "*url.Error". Transport failures are grouped by this label.
func FriendlyErrorName(typeName string) string {
	name := strings.TrimPrefix(strings.TrimSpace(typeName), "*")
	if name == "" {
		return "Unknown error"
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if alias, ok := transportAliases[name]; ok {
		return alias
	}

	pkg, typ, found := strings.Cut(name, ".")
	if !found {
		pkg, typ = "", name
	}
	pretty := strings.Join(splitCamel(typ), " ")
	if pretty == "" {
		pretty = typ
	}
	if pkg == "" || pkg == "main" {
		return pretty
	}
	return pretty + " (" + pkg + ")"
}

// splitCamel breaks an identifier into words, keeping acronyms such as HTTP
// together: "HTTPFail" becomes ["HTTP", "Fail"].
func splitCamel(ident string) []string {
	runes := []rune(ident)
	var words []string
	start := 0
	for i := 1; i <= len(runes); i++ {
		if i < len(runes) && !wordBoundary(runes, i) {
			continue
		}
		if word := string(runes[start:i]); word != "" {
			words = append(words, titleWord(word))
		}
		start = i
	}
	return words
}

func wordBoundary(runes []rune, i int) bool {
	prev, cur := runes[i-1], runes[i]
	switch {
	case unicode.IsUpper(cur) && unicode.IsLower(prev):
		return true
	case unicode.IsUpper(cur) && unicode.IsUpper(prev):
		return i+1 < len(runes) && unicode.IsLower(runes[i+1])
	case unicode.IsDigit(cur):
		return !unicode.IsDigit(prev)
	}
	return false
}

func titleWord(word string) string {
	if strings.ToUpper(word) == word {
		return word
	}
	runes := []rune(strings.ToLower(word))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
