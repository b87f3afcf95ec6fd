package model

import "time"

// Profile is the aggregated view of GET /users/{wallet}.
type Profile struct {
	Wallet       string            `json:"wallet"`
	JoinedAt     *time.Time        `json:"joined_at"`
	LastSeen     *time.Time        `json:"last_seen"`
	XUsername    *string           `json:"x_username"`
	DisplayName  *string           `json:"display_name"`
	PfpURL       *string           `json:"pfp_url"`
	Reputation   ProfileReputation `json:"reputation"`
	Attestations []Attestation     `json:"attestations"`
	Projects     []Project         `json:"projects"`
}

// ProfileReputation is the reputation block of a profile.
type ProfileReputation struct {
	Score         float64 `json:"score"`
	ReceivedCount int     `json:"received_count"`
	GivenCount    int     `json:"given_count"`
}

// ActiveAttestationFrom returns the active attestation the wallet gave to
// this profile, if any. from must be lowercase.
func (p *Profile) ActiveAttestationFrom(from string) (Attestation, bool) {
	if p == nil {
		return Attestation{}, false
	}
	for _, a := range p.Attestations {
		if a.FromWallet == from && a.Active() {
			return a, true
		}
	}
	return Attestation{}, false
}
