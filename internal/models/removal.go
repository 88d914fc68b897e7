package models

// RemovalRequest is the inbound JSON body
// @Description Background removal request
type RemovalRequest struct {
	DataSent string `json:"data_sent" validate:"required" example:"data:image/png;base64,iVBORw0KGgo..."` // Base64 image, optionally data-URL prefixed
}

// RemovalResult is returned after a successful, charged removal
// @Description Background removal response
type RemovalResult struct {
	DataReceived     string `json:"data_received" example:"data:image/png;base64,iVBORw0KGgo..."` // PNG with transparent background
	RemainingCredits int64  `json:"remaining_credits" example:"2"`                                 // Balance after the charge
}

// CreditsResponse reports the caller's balance
// @Description Credit balance
type CreditsResponse struct {
	RemainingCredits int64 `json:"remaining_credits" example:"5"`
}
