package billing

import (
	"testing"
	"time"

	"github.com/smallbiznis/tenantplane/internal/billing/domain"
	"github.com/smallbiznis/tenantplane/internal/config"
	meteringdomain "github.com/smallbiznis/tenantplane/internal/metering/domain"
	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func newTestCalculator() *Calculator {
	return NewCalculator(config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()))
}

func sampleWith(mutate func(*meteringdomain.UsageSample)) *meteringdomain.UsageSample {
	s := &meteringdomain.UsageSample{
		Date: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	}
	if mutate != nil {
		mutate(s)
	}
	return s
}

func lineFor(bill domain.Bill, dim domain.Dimension) domain.LineItem {
	for _, l := range bill.Lines {
		if l.Dimension == dim {
			return l
		}
	}
	return domain.LineItem{}
}

func TestComputeBill_NoOverage(t *testing.T) {
	calc := newTestCalculator()
	bill := calc.ComputeBill(&tenantdomain.Tenant{}, sampleWith(func(s *meteringdomain.UsageSample) {
		s.StorageMB = 512
		s.OrderCount = 100
	}))

	assert.Equal(t, int64(1500), bill.BaseFee)
	assert.Equal(t, int64(0), bill.TotalOverage)
	assert.Equal(t, int64(1500), bill.Total)
}

func TestComputeBill_SmallStorageOverageBillsOneRupee(t *testing.T) {
	calc := newTestCalculator()

	// 50 MB over the 1024 MB allowance at 5 NPR/GB: 50/1024*5 = 0.24 NPR,
	// rounded up to the next whole rupee.
	bill := calc.ComputeBill(&tenantdomain.Tenant{}, sampleWith(func(s *meteringdomain.UsageSample) {
		s.StorageMB = 1024 + 50
	}))

	line := lineFor(bill, domain.DimensionStorage)
	assert.Equal(t, int64(50), line.Overage)
	assert.Equal(t, int64(1), line.Charge)
	assert.Equal(t, int64(1501), bill.Total)
}

func TestComputeBill_DBSizeOverageBillsLikeStorage(t *testing.T) {
	calc := newTestCalculator()

	// 1 GB over the 512 MB database allowance at 5 NPR/GB.
	bill := calc.ComputeBill(&tenantdomain.Tenant{}, sampleWith(func(s *meteringdomain.UsageSample) {
		s.DBSizeMB = 512 + 1024
	}))

	line := lineFor(bill, domain.DimensionDBSize)
	assert.Equal(t, int64(1024), line.Overage)
	assert.Equal(t, int64(5), line.Charge)
	assert.Equal(t, int64(1505), bill.Total)
}

func TestComputeBill_ExactGigabyteOverage(t *testing.T) {
	calc := newTestCalculator()
	bill := calc.ComputeBill(&tenantdomain.Tenant{}, sampleWith(func(s *meteringdomain.UsageSample) {
		s.StorageMB = 1024 + 2048 // 2 GB over
	}))

	line := lineFor(bill, domain.DimensionStorage)
	assert.Equal(t, int64(10), line.Charge)
}

func TestComputeBill_UnitDimensions(t *testing.T) {
	calc := newTestCalculator()
	bill := calc.ComputeBill(&tenantdomain.Tenant{}, sampleWith(func(s *meteringdomain.UsageSample) {
		s.OrderCount = 2005 // 5 over at 1 NPR each
		s.StaffCount = 12   // 2 over at 100 NPR each
	}))

	assert.Equal(t, int64(5), lineFor(bill, domain.DimensionOrders).Charge)
	assert.Equal(t, int64(200), lineFor(bill, domain.DimensionStaff).Charge)
	assert.Equal(t, int64(205), bill.TotalOverage)
	assert.Equal(t, int64(1705), bill.Total)
}

func TestComputeBill_PrioritySupport(t *testing.T) {
	calc := newTestCalculator()
	bill := calc.ComputeBill(&tenantdomain.Tenant{PrioritySupport: true}, nil)

	assert.Equal(t, int64(500), bill.PrioritySupport)
	assert.Equal(t, int64(2000), bill.Total)
}

func TestComputeBill_NilSample(t *testing.T) {
	calc := newTestCalculator()
	bill := calc.ComputeBill(&tenantdomain.Tenant{}, nil)

	assert.Equal(t, int64(0), bill.TotalOverage)
	assert.Equal(t, int64(1500), bill.Total)
}

func TestComputeBill_LimitOverridesRaiseAllowance(t *testing.T) {
	calc := newTestCalculator()
	record := &tenantdomain.Tenant{
		LimitOverrides: datatypes.JSONMap{"maxStorageMB": float64(4096)},
	}
	bill := calc.ComputeBill(record, sampleWith(func(s *meteringdomain.UsageSample) {
		s.StorageMB = 2048 // over the default, under the override
	}))

	assert.Equal(t, int64(0), lineFor(bill, domain.DimensionStorage).Charge)
}
