package types

// Credentials are the values a user submits through the configuration page.
type Credentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"-"`
	Account  string `json:"account"`
}

// Complete reports whether all three fields are set.
func (c Credentials) Complete() bool {
	return c.SSID != "" && c.Password != "" && c.Account != ""
}

// HasNetwork reports whether both the network name and secret are set.
func (c Credentials) HasNetwork() bool {
	return c.SSID != "" && c.Password != ""
}
