package auth

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var totpValidateOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// newTOTPKey generates a fresh secret for accountName.
func newTOTPKey(issuer, accountName string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      totpValidateOpts.Period,
		Digits:      totpValidateOpts.Digits,
		Algorithm:   totpValidateOpts.Algorithm,
	})
}

// checkTOTP validates code against secret at time t, allowing one period of
// clock drift either way.
func checkTOTP(code, secret string, t time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, t.UTC(), totpValidateOpts)
	return err == nil && ok
}
