package gateway

import (
	"net/http"
	"strings"

	"github.com/pquerna/otp/totp"
)

// totpHeader carries the operator's one-time code when it is not in the body.
const totpHeader = "X-TOTP-Code"

// authorized reports whether an operator action may proceed. Without a
// configured secret every request is allowed; otherwise a current TOTP code
// must arrive in the X-TOTP-Code header or the body's code field.
func (rt Routes) authorized(r *http.Request, bodyCode string) bool {
	if rt.TOTPSecret == "" {
		return true
	}
	code := strings.TrimSpace(r.Header.Get(totpHeader))
	if code == "" {
		code = strings.TrimSpace(bodyCode)
	}
	return code != "" && totp.Validate(code, rt.TOTPSecret)
}
