package customer

// Profile is a stored customer record looked up by phone number
type Profile struct {
	Name         string `json:"customerName"`
	Phone        string `json:"phone,omitempty"`
	Address      string `json:"customerAddress"`
	Observations string `json:"observations"`
}

// Complete reports whether the profile can back an express order.
// A profile missing name or address offers no express path.
func (p *Profile) Complete() bool {
	return p != nil && p.Name != "" && p.Address != ""
}
