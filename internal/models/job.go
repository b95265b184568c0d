package models

// DeliveryJob is the unit of work carried on the jobs topic. One record equals
// one logical send; attempt tracking lives in the worker, not the payload.
type DeliveryJob struct {
	MessageID     string         `json:"message_id"`
	PhoneNumberID string         `json:"phone_number_id"`
	To            string         `json:"to"`
	Type          string         `json:"type"`
	Content       MessageContent `json:"content"`
}
