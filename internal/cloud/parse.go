package cloud

import (
	"bytes"
	"strings"
)

// securityCheckPhrases mark the notice shown when the appliance's local
// safety check has not been confirmed.
var securityCheckPhrases = [][]byte{
	[]byte("security check"),
	[]byte("Sicherheitskontrolle"),
}

var loginRequiredMarker = []byte(`"LoginRequired":true`)

// IsSecurityCheckNotice reports whether body contains the safety-check notice
// in English or German.
func IsSecurityCheckNotice(body []byte) bool {
	for _, phrase := range securityCheckPhrases {
		if bytes.Contains(body, phrase) {
			return true
		}
	}
	return false
}

func loginRequired(body []byte) bool {
	return bytes.Contains(body, loginRequiredMarker)
}

// extractVerificationToken returns the value of the
// __RequestVerificationToken hidden input, or "" if absent.
func extractVerificationToken(body []byte) string {
	s := string(body)
	i := strings.Index(s, "RequestVerificationToken")
	if i < 0 {
		return ""
	}
	s = s[i:]

	j := strings.Index(s, `value="`)
	if j < 0 {
		return ""
	}
	s = s[j+len(`value="`):]

	end := strings.IndexByte(s, '"')
	if end < 0 {
		return ""
	}
	return s[:end]
}
