package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount_MarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1", "1.000"},
		{"100", "100.000"},
		{"-12.5", "-12.500"},
		{"0.0005", "0.001"},
		{"-0.0005", "-0.001"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			out, err := json.Marshal(MustAmount(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestAmount_UnmarshalJSON(t *testing.T) {
	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"12.34567"`), &a))
	assert.Equal(t, "12.346", a.StringFixed(AmountPlaces))

	require.NoError(t, json.Unmarshal([]byte(`7`), &a))
	assert.True(t, a.Equal(MustAmount("7").Decimal))
}

func TestStatementRecord_JSONContract(t *testing.T) {
	date := "01/01/2024"
	rec := NewStatementRecord()
	rec.OrgID = "ORG1"
	rec.StatementDate = &date
	rec.TotalDebits = MustAmount("5")
	rec.AddTransaction(Transaction{Description: CreditLabel, Credit: true})
	rec.Stamp("job-1", "hash-1")

	out, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))

	assert.Equal(t, "ORG1", decoded["orgId"])
	assert.Equal(t, "01/01/2024", decoded["statementDate"])
	assert.Equal(t, 5.0, decoded["toatalDepits"])
	assert.Equal(t, "job-1", decoded["job_id"])
	assert.Equal(t, "hash-1", decoded["file_hash"])

	txs, ok := decoded["transactions"].([]interface{})
	require.True(t, ok)
	require.Len(t, txs, 1)
	tx := txs[0].(map[string]interface{})
	assert.Equal(t, true, tx["cr"])
	assert.Nil(t, tx["date"])
}

func TestNewStatementRecord_EmptyTransactionsMarshalAsArray(t *testing.T) {
	out, err := json.Marshal(NewStatementRecord())
	require.NoError(t, err)
	assert.Contains(t, string(out), `"transactions":[]`)
	assert.Contains(t, string(out), `"statementDate":null`)
}

func TestIsCreditDescription(t *testing.T) {
	assert.True(t, IsCreditDescription("Payment Received"))
	assert.True(t, IsCreditDescription("  Payment Received "))
	assert.False(t, IsCreditDescription("PAYMENT RECEIVED"))
	assert.False(t, IsCreditDescription("Payment Received - thanks"))
}
