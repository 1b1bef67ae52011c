package models

// Principal is the authenticating user record as seen by the second-factor service
type Principal struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string

	// TOTPSecret is the base32 shared secret, empty when not enrolled
	TOTPSecret string

	// BackupCodeHashes holds keyed hashes of the unconsumed backup codes
	BackupCodeHashes []string

	// LastTOTPStep is the most recent time step accepted, used to reject replays
	LastTOTPStep int64
}

// HasSecondFactor reports whether the principal has enrolled a TOTP secret
func (p *Principal) HasSecondFactor() bool {
	return p.TOTPSecret != ""
}

// HasAnyRole reports whether the principal holds at least one of roles
func (p *Principal) HasAnyRole(roles []string) bool {
	for _, want := range roles {
		for _, have := range p.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}
