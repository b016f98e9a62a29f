package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dvloznov/statement-relay/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	fieldDelimiter = "|"

	// Record types, read from field 3.
	recordAccount     = "1"
	recordCustomer    = "2"
	recordTransaction = "4"
	recordEndOfData   = "6"

	// continuationMarker in the description field marks a wrapped line, not
	// a transaction.
	continuationMarker = "NEWL"

	cardPrefixLen = 3
)

// Field positions within each record type.
const (
	fieldOrgID         = 0
	fieldCardNumber    = 2
	fieldRecordType    = 3
	fieldCurrentBal    = 12
	fieldStatementDate = 14
	fieldAvailableBal  = 27
	fieldTotalCredits  = 41
	fieldTotalDebits   = 43
	fieldOpeningBal    = 45

	fieldName = 5

	fieldTxDate          = 4
	fieldTxSettlementAmt = 7
	fieldTxPostDate      = 10
	fieldTxDescription   = 22
	fieldTxCurrency      = 56
	fieldTxAmount        = 57
)

var addressFields = []int{6, 7, 8, 82}

// ParseFile reads and parses the extract stored at path.
func ParseFile(path string) (*domain.StatementRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ParseFile: reading %s: %w", path, err)
	}
	return ParseBytes(data)
}

// Parse reads the whole extract from r and parses it.
func Parse(r io.Reader) (*domain.StatementRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Parse: reading extract: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes parses one statement extract. Either the complete record is
// returned or an error; a failing line never yields a partial record.
func ParseBytes(data []byte) (*domain.StatementRecord, error) {
	record := domain.NewStatementRecord()

	for i, line := range splitLines(data) {
		ln := &row{number: i + 1, fields: strings.Split(line, fieldDelimiter)}

		recordType, err := ln.text(fieldRecordType)
		if err != nil {
			return nil, err
		}
		ln.recordType = recordType

		switch recordType {
		case recordAccount:
			err = parseAccount(ln, record)
		case recordCustomer:
			err = parseCustomer(ln, record)
		case recordTransaction:
			err = parseTransaction(ln, record)
		case recordEndOfData:
			return record, nil
		default:
			// 3 (card details), 5 (installments) and unknown types carry
			// nothing the statement needs.
		}
		if err != nil {
			return nil, err
		}
	}

	return record, nil
}

// splitLines splits on \n or \r\n and drops trailing empty lines.
func splitLines(data []byte) []string {
	text := string(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n")))
	lines := strings.Split(text, "\n")
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func parseAccount(r *row, rec *domain.StatementRecord) error {
	orgID, err := r.text(fieldOrgID)
	if err != nil {
		return err
	}
	statementDate, err := r.date(fieldStatementDate)
	if err != nil {
		return err
	}
	card, err := r.text(fieldCardNumber)
	if err != nil {
		return err
	}
	if len(card) < cardPrefixLen {
		return r.fail(fieldCardNumber, fmt.Errorf("%w: card number %q shorter than its prefix", ErrMalformedInput, card))
	}

	current, err := r.signed(fieldCurrentBal)
	if err != nil {
		return err
	}
	opening, err := r.signed(fieldOpeningBal)
	if err != nil {
		return err
	}
	credits, err := r.signed(fieldTotalCredits)
	if err != nil {
		return err
	}
	debits, err := r.signed(fieldTotalDebits)
	if err != nil {
		return err
	}
	available, err := r.scaled(fieldAvailableBal)
	if err != nil {
		return err
	}

	rec.OrgID = orgID
	rec.StatementDate = statementDate
	rec.CardNumber = card[cardPrefixLen:]
	rec.CurrentBalance = domain.NewAmount(current)
	rec.OpeningBalance = domain.NewAmount(opening)
	rec.TotalCredits = domain.NewAmount(credits)
	rec.TotalDebits = domain.NewAmount(debits)
	rec.AvailableBalance = domain.NewAmount(available)
	return nil
}

func parseCustomer(r *row, rec *domain.StatementRecord) error {
	name, err := r.text(fieldName)
	if err != nil {
		return err
	}

	parts := make([]string, 0, len(addressFields))
	for _, idx := range addressFields {
		part, err := r.text(idx)
		if err != nil {
			return err
		}
		parts = append(parts, part)
	}

	rec.Name = name
	rec.Address = strings.Join(parts, " ")
	return nil
}

func parseTransaction(r *row, rec *domain.StatementRecord) error {
	description, err := r.text(fieldTxDescription)
	if err != nil {
		return err
	}
	if description == continuationMarker {
		return nil
	}

	date, err := r.date(fieldTxDate)
	if err != nil {
		return err
	}
	postDate, err := r.date(fieldTxPostDate)
	if err != nil {
		return err
	}
	amount, err := r.scaled(fieldTxAmount)
	if err != nil {
		return err
	}
	settlement, err := r.scaled(fieldTxSettlementAmt)
	if err != nil {
		return err
	}
	currency, err := r.text(fieldTxCurrency)
	if err != nil {
		return err
	}

	rec.AddTransaction(domain.Transaction{
		Date:               date,
		PostDate:           postDate,
		Description:        description,
		Amount:             domain.NewAmount(amount),
		AmountInSettlement: domain.NewAmount(settlement),
		Currency:           currency,
		Credit:             domain.IsCreditDescription(description),
	})
	return nil
}

// row is one split extract line with field accessors that attach the line
// and field position to every failure.
type row struct {
	number     int
	recordType string
	fields     []string
}

func (r *row) fail(field int, err error) error {
	return &ParseError{Line: r.number, Field: field, RecordType: r.recordType, Err: err}
}

func (r *row) text(field int) (string, error) {
	if field >= len(r.fields) {
		return "", r.fail(field, fmt.Errorf("%w: line has %d fields", ErrMissingField, len(r.fields)))
	}
	return strings.TrimSpace(r.fields[field]), nil
}

func (r *row) date(field int) (*string, error) {
	raw, err := r.text(field)
	if err != nil {
		return nil, err
	}
	d, err := NormalizeDate(raw)
	if err != nil {
		return nil, r.fail(field, err)
	}
	return d, nil
}

func (r *row) signed(field int) (decimal.Decimal, error) {
	raw, err := r.text(field)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := NormalizeSignedDecimal(raw)
	if err != nil {
		return decimal.Zero, r.fail(field, err)
	}
	return d, nil
}

func (r *row) scaled(field int) (decimal.Decimal, error) {
	raw, err := r.text(field)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := NormalizeScaledAmount(raw)
	if err != nil {
		return decimal.Zero, r.fail(field, err)
	}
	return d, nil
}
