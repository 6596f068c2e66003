package ocpp

// Registration and authorization statuses used in confirmations. The gateway
// implements an always-accept policy, so only the accepted values appear.
const (
	RegistrationAccepted  = "Accepted"
	AuthorizationAccepted = "Accepted"
)

// IdTagInfo carries the authorization verdict for a tag.
type IdTagInfo struct {
	Status string `json:"status"`
}

type BootNotificationRequest struct {
	ChargePointModel  string `json:"chargePointModel"`
	ChargePointVendor string `json:"chargePointVendor"`
}

type BootNotificationConfirmation struct {
	CurrentTime string `json:"currentTime"`
	Interval    int    `json:"interval"`
	Status      string `json:"status"`
}

type HeartbeatConfirmation struct {
	CurrentTime string `json:"currentTime"`
}

type AuthorizeRequest struct {
	IdTag string `json:"idTag"`
}

type AuthorizeConfirmation struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

type StartTransactionRequest struct {
	ConnectorID int    `json:"connectorId"`
	IdTag       string `json:"idTag"`
	MeterStart  int    `json:"meterStart"`
	Timestamp   string `json:"timestamp"`
}

type StartTransactionConfirmation struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
	TransactionID int       `json:"transactionId"`
}

type StopTransactionRequest struct {
	MeterStop     int     `json:"meterStop"`
	Timestamp     string  `json:"timestamp"`
	TransactionID int     `json:"transactionId"`
	IdTag         *string `json:"idTag,omitempty"`
}

type StopTransactionConfirmation struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}
