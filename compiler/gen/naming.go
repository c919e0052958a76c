package gen

import (
	"strings"
	"sync"
	"unicode"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	acronymsMu sync.RWMutex
	acronyms   = map[string]struct{}{
		"ACL": {}, "API": {}, "ASCII": {}, "AWS": {}, "CPU": {}, "CSS": {},
		"DNS": {}, "EOF": {}, "GB": {}, "GUID": {}, "HTML": {}, "HTTP": {},
		"HTTPS": {}, "ID": {}, "IP": {}, "JSON": {}, "KB": {}, "LHS": {},
		"MAC": {}, "MB": {}, "QPS": {}, "RAM": {}, "RHS": {}, "RPC": {},
		"SLA": {}, "SMTP": {}, "SQL": {}, "SSH": {}, "SSO": {}, "TCP": {},
		"TLS": {}, "TTL": {}, "UDP": {}, "UI": {}, "UID": {}, "URI": {},
		"URL": {}, "UTF8": {}, "UUID": {}, "VM": {}, "XML": {}, "XMPP": {},
		"XSRF": {}, "XSS": {},
	}
)

// AddAcronym registers a word that pascal and camel render upper-cased.
func AddAcronym(word string) {
	acronymsMu.Lock()
	defer acronymsMu.Unlock()
	acronyms[strings.ToUpper(word)] = struct{}{}
}

func isAcronym(word string) bool {
	acronymsMu.RLock()
	defer acronymsMu.RUnlock()
	_, ok := acronyms[strings.ToUpper(word)]
	return ok
}

func isSeparator(r rune) bool {
	return r == '_' || r == '-' || unicode.IsSpace(r)
}

// snake converts a Go identifier to snake case.
//
//	snake("UserIDs") == "user_ids"
//	snake("PHBOrg") == "phb_org"
func snake(s string) string {
	var (
		b     strings.Builder
		runes = []rune(s)
	)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			// A trailing plural "s" keeps the acronym whole: IDs, URLs.
			if nextLower && i+2 == len(runes) && runes[i+1] == 's' {
				nextLower = false
			}
			if prev != '_' && (unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower)) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// pascal converts a snake or kebab cased name to a Go exported identifier.
//
//	pascal("user_id") == "UserID"
//	pascal("api_url") == "APIURL"
func pascal(s string) string {
	words := strings.FieldsFunc(s, isSeparator)
	caser := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	for _, w := range words {
		if isAcronym(w) {
			b.WriteString(strings.ToUpper(w))
			continue
		}
		b.WriteString(caser.String(w))
	}
	return b.String()
}

// camel is like pascal with the first word lower-cased.
//
//	camel("http_code") == "httpCode"
func camel(s string) string {
	words := strings.FieldsFunc(s, isSeparator)
	if len(words) == 0 {
		return ""
	}
	first := strings.ToLower(words[0])
	if len(words) == 1 {
		return first
	}
	return first + pascal(strings.Join(words[1:], "_"))
}

// receiver returns a short receiver name for a type.
func receiver(s string) string {
	if s == "" {
		return "x"
	}
	return strings.ToLower(s[:1])
}

// tableName returns the conventional table name of an entity.
func tableName(entity string) string {
	return inflect.Pluralize(snake(entity))
}
