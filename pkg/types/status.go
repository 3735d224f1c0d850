package types

// Phase is the provisioning phase of the device.
type Phase string

const (
	PhaseIdle       Phase = "Idle"
	PhaseAPMode     Phase = "APModeActive"
	PhaseConnecting Phase = "Connecting"
	PhaseConnected  Phase = "Connected"
)

// ErrorKind is the single most recent failure recorded by the device.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorConnectionFailed
	ErrorFetchFailed
	ErrorParseFailed
)

// String returns the human-readable label shown on the status page.
func (e ErrorKind) String() string {
	switch e {
	case ErrorNone:
		return "None"
	case ErrorConnectionFailed:
		return "Wi-Fi Connection Failed"
	case ErrorFetchFailed:
		return "Instagram Fetch Failed"
	case ErrorParseFailed:
		return "JSON Parse Error"
	default:
		return "Unknown"
	}
}

// UnsetCount is the follower count before the first successful fetch.
const UnsetCount = -1

const (
	WiFiConnected    = "Connected"
	WiFiNotConnected = "Not Connected"
)

// Status is the read-only view served by GET /status on the configuration
// page. Field names are part of the page's JavaScript contract.
type Status struct {
	WiFiStatus    string `json:"wifi_status"`
	FollowerCount int    `json:"follower_count"`
	LastError     string `json:"last_error"`
}

// DaemonStatus extends Status with fields only the local control API exposes.
type DaemonStatus struct {
	Status
	Phase    Phase  `json:"phase"`
	Account  string `json:"account"`
	Interval string `json:"interval"`
	LastPoll string `json:"last_poll,omitempty"`
	LocalIP  string `json:"local_ip,omitempty"`
}

// LastErrorInfo is the body of GET /last-error on the control API.
type LastErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
