package confirm

import (
	"net/http"
	"strings"

	"obconsent/internal/authorize/payload"
)

// Extension contributes deployment-specific fields to the persisted
// submission. Values it returns override the ones the flow collected.
type Extension interface {
	ConsentMetadata(r *http.Request) map[string]string
	ConsentData(r *http.Request) map[string]any
}

// DefaultExtension reads the account selection of the default consent page.
type DefaultExtension struct{}

// ConsentMetadata adds nothing.
func (DefaultExtension) ConsentMetadata(*http.Request) map[string]string {
	return nil
}

// ConsentData maps the "accounts[]" field, colon separated, to accountIds and
// copies the payment and card-on-file account fields. CR and LF are stripped.
func (DefaultExtension) ConsentData(r *http.Request) map[string]any {
	out := make(map[string]any)
	if values, ok := r.PostForm["accounts[]"]; ok {
		ids := []string{}
		for _, v := range values {
			ids = append(ids, strings.Split(stripCRLF(v), ":")...)
		}
		out[payload.FieldAccountIDs] = ids
	}
	for _, field := range []string{payload.FieldPaymentAccount, payload.FieldCOFAccount} {
		if _, ok := r.PostForm[field]; ok {
			out[field] = stripCRLF(r.PostForm.Get(field))
		}
	}
	return out
}

var crlf = strings.NewReplacer("\r", "", "\n", "")

func stripCRLF(s string) string {
	return crlf.Replace(s)
}
