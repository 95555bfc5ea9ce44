package domain

import "time"

// RequestCategory distinguishes the two money-movement flows.
type RequestCategory string

const (
	CategoryWithdrawal RequestCategory = "withdrawal"
	CategoryTopUp      RequestCategory = "topup"
)

// RequestStatus is the approval state of a request. A request starts
// PENDING and moves exactly once to APPROVED or REJECTED.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// Terminal reports whether s is one of the two end states.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Member is a registered user of the platform.
type Member struct {
	ID        int64     `json:"id,string"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger holds the per-member balance aggregates, in minor units.
// Balances cross the wire as strings; int64 values can exceed the
// safe-integer range of JSON consumers.
type Ledger struct {
	MemberID         int64     `json:"member_id,string"`
	Wallet           int64     `json:"wallet_balance,string"`
	Earnings         int64     `json:"earnings,string"`
	CombinedEarnings int64     `json:"combined_earnings,string"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Merchant is a payment intermediary whose settlement float funds
// top-up approvals.
type Merchant struct {
	ID        int64     `json:"id,string"`
	Name      string    `json:"name"`
	Balance   int64     `json:"balance,string"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Request is a member-submitted withdrawal or top-up awaiting
// resolution. ApproverID and MerchantID are zero while unset.
type Request struct {
	ID            int64           `json:"id,string"`
	MemberID      int64           `json:"member_id,string"`
	MerchantID    int64           `json:"merchant_id,string"`
	Category      RequestCategory `json:"category"`
	Amount        int64           `json:"amount,string"`
	Fee           int64           `json:"fee,string"`
	Status        RequestStatus   `json:"status"`
	Note          string          `json:"note,omitempty"`
	ApproverID    int64           `json:"approver_id,string"`
	BankDetails   string          `json:"bank_details,omitempty"`
	AttachmentKey string          `json:"attachment_key,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Transaction is an immutable audit row describing a balance-affecting
// event. Amount carries the net effect of the event.
type Transaction struct {
	ID          int64     `json:"id,string"`
	MemberID    int64     `json:"member_id,string"`
	RequestID   int64     `json:"request_id,string"`
	Amount      int64     `json:"amount,string"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notification is a per-member message with a read flag. Only the
// owning member may flip the flag.
type Notification struct {
	ID        int64     `json:"id,string"`
	MemberID  int64     `json:"member_id,string"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor is the authenticated identity performing an operation.
type Actor struct {
	MemberID int64
	Username string
	Role     Role
}
