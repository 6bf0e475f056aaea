package settlement

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// The schema's CHECK constraints must accept every status value the code
// writes, or settlement updates abort at commit time.
func TestSchemaAcceptsStatusVocabulary(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "..", "scripts", "schema.sql"))
	require.NoError(t, err)
	schema := string(data)

	invoiceCheck := statusCheckValues(t, schema, "invoices")
	for _, status := range []InvoiceStatus{InvoiceStatusUnpaid, InvoiceStatusPartiallyPaid, InvoiceStatusPaid} {
		require.Contains(t, invoiceCheck, "'"+string(status)+"'", "invoices CHECK rejects %s", status)
	}

	voucherCheck := statusCheckValues(t, schema, "vouchers")
	for _, status := range []VoucherStatus{VoucherStatusDraft, VoucherStatusPosted, VoucherStatusCancelled} {
		require.Contains(t, voucherCheck, "'"+string(status)+"'", "vouchers CHECK rejects %s", status)
	}
}

var statusCheckRe = regexp.MustCompile(`status\s+TEXT[^\n]*CHECK \(status IN \(([^)]*)\)`)

func statusCheckValues(t *testing.T, schema, table string) string {
	t.Helper()
	start := strings.Index(schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	require.GreaterOrEqual(t, start, 0, "table %s not in schema", table)
	block := schema[start:]
	if end := strings.Index(block, ");"); end >= 0 {
		block = block[:end]
	}
	m := statusCheckRe.FindStringSubmatch(block)
	require.NotNil(t, m, "no status CHECK on %s", table)
	return m[1]
}
