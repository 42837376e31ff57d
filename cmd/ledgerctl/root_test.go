package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshotJSON = `{
  "customer_id": "c1",
  "bills": [
    {"id": "b1", "customer_id": "c1", "bill_number": "INV-1", "total_amount": "1000", "amount_paid": "400",
     "created_at": "2026-10-01T09:00:00Z", "due_date": "2026-10-15T00:00:00Z"}
  ],
  "payments": [
    {"id": "p1", "customer_id": "c1", "sale_id": "b1", "amount": 150, "created_at": "2026-10-05T10:00:00Z"}
  ],
  "returns": [
    {"id": "r1", "customer_id": "c1", "sale_id": "b1", "total_refund": "50", "refund_method": "credit",
     "created_at": "2026-10-03T12:00:00Z"}
  ]
}`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--log-level", "error"))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func TestLedgerCommand_JSON(t *testing.T) {
	out, err := run(t, snapshotJSON, "ledger", "--as-of", "2026-10-19")
	require.NoError(t, err)

	var rec struct {
		CustomerID  string `json:"customer_id"`
		Balance     string `json:"balance"`
		BalanceSign string `json:"balance_sign"`
		Entries     []struct {
			Kind         string `json:"kind"`
			ID           string `json:"id"`
			BalanceAfter string `json:"balance_after"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rec))

	assert.Equal(t, "c1", rec.CustomerID)
	assert.Equal(t, "550.00", rec.Balance)
	require.Len(t, rec.Entries, 3)
	assert.Equal(t, "b1", rec.Entries[0].ID)
	assert.Equal(t, "r1", rec.Entries[1].ID)
	assert.Equal(t, "p1", rec.Entries[2].ID)
	assert.Equal(t, "550.00", rec.Entries[2].BalanceAfter)
}

func TestLedgerCommand_Text(t *testing.T) {
	out, err := run(t, snapshotJSON, "ledger", "--format", "text", "--as-of", "2026-10-19")
	require.NoError(t, err)
	assert.Contains(t, out, "Statement for customer c1")
	assert.Contains(t, out, "Closing balance")
	assert.Contains(t, out, "550.00")
}

func TestLedgerCommand_UnknownFormat(t *testing.T) {
	_, err := run(t, snapshotJSON, "ledger", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestStatsCommand(t *testing.T) {
	out, err := run(t, snapshotJSON, "stats")
	require.NoError(t, err)

	var got struct {
		Balance string `json:"balance"`
		Stats   struct {
			TotalBills       int    `json:"total_bills"`
			UnpaidBills      int    `json:"unpaid_bills"`
			TotalOutstanding string `json:"total_outstanding"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "550.00", got.Balance)
	assert.Equal(t, 1, got.Stats.TotalBills)
	assert.Equal(t, 1, got.Stats.UnpaidBills)
	assert.Equal(t, "550.00", got.Stats.TotalOutstanding)
}

func TestDueCommand(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		out, err := run(t, snapshotJSON, "due", "--as-of", "2026-10-19")
		require.NoError(t, err)

		var due []struct {
			Status      string `json:"status"`
			Outstanding string `json:"outstanding"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &due))
		require.Len(t, due, 1)
		assert.Equal(t, "overdue", due[0].Status)
		assert.Equal(t, "550.00", due[0].Outstanding)
	})

	t.Run("text", func(t *testing.T) {
		out, err := run(t, snapshotJSON, "due", "-f", "text", "--as-of", "2026-10-10")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "BILL"))
		assert.Contains(t, lines[1], "b1")
		assert.Contains(t, lines[1], "2026-10-15")
		assert.Contains(t, lines[1], "due_soon")
	})
}

func TestStatementCommand(t *testing.T) {
	t.Run("csv for a period", func(t *testing.T) {
		out, err := run(t, snapshotJSON, "statement", "--from", "2026-10-04", "--to", "2026-10-31", "--format", "csv")
		require.NoError(t, err)

		records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(records), 2)
		assert.Contains(t, out, "p1")
		assert.NotContains(t, out, "r1")
	})

	t.Run("inverted period", func(t *testing.T) {
		_, err := run(t, snapshotJSON, "statement", "--from", "2026-10-31", "--to", "2026-10-01")
		assert.Error(t, err)
	})

	t.Run("bad date", func(t *testing.T) {
		_, err := run(t, snapshotJSON, "statement", "--from", "31/10/2026")
		assert.Error(t, err)
	})

	t.Run("bad format", func(t *testing.T) {
		_, err := run(t, snapshotJSON, "statement", "--format", "pdf")
		assert.Error(t, err)
	})
}

func TestSnapshotFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customer.json")
	require.NoError(t, os.WriteFile(path, []byte(snapshotJSON), 0o600))

	out, err := run(t, "", "stats", "-i", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"balance": "550.00"`)
}

func TestSnapshotErrors(t *testing.T) {
	_, err := run(t, "", "stats", "-i", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to open snapshot")

	_, err = run(t, "{not json", "stats")
	assert.ErrorContains(t, err, "failed to decode snapshot")

	_, err = run(t, snapshotJSON, "stats", "--as-of", "yesterday")
	assert.ErrorContains(t, err, "invalid --as-of")
}
