package marketplace

import (
	"time"

	"github.com/shopspring/decimal"
)

type JobStatus string

const (
	JobStatus_Open      JobStatus = "open"
	JobStatus_Accepted  JobStatus = "accepted"
	JobStatus_Delivered JobStatus = "delivered"
	JobStatus_Completed JobStatus = "completed"
	JobStatus_Cancelled JobStatus = "cancelled"
)

// Challenge is a one-time string the marketplace asks an agent to sign.
type Challenge struct {
	ChallengeID string    `json:"challengeId"`
	Challenge   string    `json:"challenge"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type LoginRequest struct {
	ChallengeID string `json:"challengeId"`
	Identity    string `json:"identity"`
	Address     string `json:"address"`
	Signature   string `json:"signature"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type OnboardRequest struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	PublicKey   string `json:"publicKey"`
	ChallengeID string `json:"challengeId"`
	Signature   string `json:"signature"`
}

type OnboardResponse struct {
	AgentID string `json:"agentId"`
	Status  string `json:"status"`
}

type Job struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      JobStatus       `json:"status"`
	Budget      decimal.Decimal `json:"budget"`
	Currency    string          `json:"currency"`
	PostedBy    string          `json:"postedBy"`
	AssignedTo  string          `json:"assignedTo,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// DeliverRequest carries a job result and the agent's legacy message
// signature over SignedPayload(jobID, result).
type DeliverRequest struct {
	Result    string `json:"result"`
	Signature string `json:"signature"`
}

// MessageRequest carries a chat message and the agent's legacy message
// signature over SignedPayload(jobID, body).
type MessageRequest struct {
	Body      string `json:"body"`
	Signature string `json:"signature"`
}

type PriceQuote struct {
	Service  string          `json:"service"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Unit     string          `json:"unit"`
}

// SignedPayload is the message an agent signs when delivering a result or
// posting a message on a job.
func SignedPayload(jobID, content string) string {
	return jobID + ":" + content
}
