package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CreditLabel is the only description that marks a transaction as a credit.
const CreditLabel = "Payment Received"

// AmountPlaces is the fixed precision of every monetary value in a statement.
const AmountPlaces = 3

// Amount is a monetary value carried at three decimal places. It marshals as a
// bare JSON number with exactly three decimals, e.g. 100.000.
type Amount struct {
	decimal.Decimal
}

// NewAmount rounds d to AmountPlaces.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d.Round(AmountPlaces)}
}

// MustAmount parses s and panics on failure. Intended for tests and constants.
func MustAmount(s string) Amount {
	return NewAmount(decimal.RequireFromString(s))
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.StringFixed(AmountPlaces)), nil
}

// UnmarshalJSON accepts both quoted and bare numbers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*a = NewAmount(d)
	return nil
}

// StatementRecord is one parsed statement extract. JSON names follow the
// contract of the downstream PDF renderer.
type StatementRecord struct {
	OrgID         string  `json:"orgId"`
	CardNumber    string  `json:"cardNumber"`
	StatementDate *string `json:"statementDate"` // dd/MM/yyyy, nil when the extract carries the zero date
	Name          string  `json:"name"`
	Address       string  `json:"address"`

	AvailableBalance Amount `json:"availableBalance"`
	OpeningBalance   Amount `json:"openingBalance"`
	CurrentBalance   Amount `json:"currentBalance"`
	TotalCredits     Amount `json:"totalCredits"`
	TotalDebits      Amount `json:"toatalDepits"` // renderer reads this spelling

	Transactions []Transaction `json:"transactions"`

	// Pass-through correlation identifiers from the triggering message.
	JobID    string `json:"job_id"`
	FileHash string `json:"file_hash"`
}

// NewStatementRecord returns an empty record ready to be filled by a parser.
func NewStatementRecord() *StatementRecord {
	return &StatementRecord{
		Transactions: make([]Transaction, 0),
	}
}

// AddTransaction appends tx, preserving source order.
func (r *StatementRecord) AddTransaction(tx Transaction) {
	r.Transactions = append(r.Transactions, tx)
}

// Stamp attaches the correlation identifiers verbatim.
func (r *StatementRecord) Stamp(jobID, fileHash string) {
	r.JobID = jobID
	r.FileHash = fileHash
}

// Transaction is one statement line item.
type Transaction struct {
	Date               *string `json:"date"`
	PostDate           *string `json:"postDate"`
	Description        string  `json:"description"`
	Amount             Amount  `json:"amount"`
	AmountInSettlement Amount  `json:"amountInBHD"`
	Currency           string  `json:"currency"`
	Credit             bool    `json:"cr"`
}

// IsCreditDescription reports whether a description marks a credit.
func IsCreditDescription(description string) bool {
	return strings.TrimSpace(description) == CreditLabel
}
