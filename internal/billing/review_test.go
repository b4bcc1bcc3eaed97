package billing

import (
	"testing"

	meteringdomain "github.com/smallbiznis/tenantplane/internal/metering/domain"
	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
)

func TestExceedsStorage(t *testing.T) {
	limits := tenantdomain.Limits{MaxDBSizeMB: 512, MaxStorageMB: 1024}

	assert.False(t, exceedsStorage(nil, limits))
	assert.False(t, exceedsStorage(&meteringdomain.UsageSample{StorageMB: 1024}, limits))
	assert.True(t, exceedsStorage(&meteringdomain.UsageSample{StorageMB: 1025}, limits))

	assert.False(t, exceedsStorage(&meteringdomain.UsageSample{DBSizeMB: 2048, StorageMB: 100}, limits),
		"database size over its limit is billed, it never flips the hard cap")
}

func TestExceedsStorage_NoLimitConfigured(t *testing.T) {
	assert.False(t, exceedsStorage(&meteringdomain.UsageSample{StorageMB: 1 << 20}, tenantdomain.Limits{}))
}
