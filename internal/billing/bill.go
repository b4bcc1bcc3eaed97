// Package billing computes overage charges from daily usage samples and
// raises threshold alerts against effective limits.
package billing

import (
	"github.com/smallbiznis/tenantplane/internal/billing/domain"
	"github.com/smallbiznis/tenantplane/internal/config"
	meteringdomain "github.com/smallbiznis/tenantplane/internal/metering/domain"
	tenantdomain "github.com/smallbiznis/tenantplane/internal/tenant/domain"
)

// Calculator derives bill projections. Rates and default limits come from the
// hot-reloadable billing config; per-tenant overrides win over defaults.
type Calculator struct {
	holder *config.BillingConfigHolder
}

func NewCalculator(holder *config.BillingConfigHolder) *Calculator {
	return &Calculator{holder: holder}
}

// EffectiveLimits resolves the tenant's allowances against plan defaults.
func (c *Calculator) EffectiveLimits(tenant *tenantdomain.Tenant) tenantdomain.Limits {
	d := c.holder.Current().DefaultLimits
	return tenant.EffectiveLimits(tenantdomain.Limits{
		MaxDBSizeMB:          d.MaxDBSizeMB,
		MaxStorageMB:         d.MaxStorageMB,
		MaxBandwidthMB:       d.MaxBandwidthMB,
		MaxAPIRequestsPerDay: d.MaxAPIRequestsPerDay,
		MaxOrders:            d.MaxOrders,
		MaxStaff:             d.MaxStaff,
	})
}

// ComputeBill projects the tenant's charge for the sample's day. Megabyte
// dimensions price overage at a per-GB rate with the charge rounded up to the
// next whole NPR; count dimensions price per unit.
func (c *Calculator) ComputeBill(tenant *tenantdomain.Tenant, sample *meteringdomain.UsageSample) domain.Bill {
	cfg := c.holder.Current()
	limits := c.EffectiveLimits(tenant)

	bill := domain.Bill{
		TenantID: tenant.ID,
		BaseFee:  cfg.Rates.BaseFee,
	}
	if sample != nil {
		bill.Period = sample.Date
	}
	if tenant.PrioritySupport {
		bill.PrioritySupport = cfg.Rates.PrioritySupport
	}

	var dbSizeMB, storageMB, bandwidthMB, orders, staff int64
	if sample != nil {
		dbSizeMB = sample.DBSizeMB
		storageMB = sample.StorageMB
		bandwidthMB = sample.BandwidthMB
		orders = sample.OrderCount
		staff = sample.StaffCount
	}

	bill.Lines = []domain.LineItem{
		mbLine(domain.DimensionDBSize, dbSizeMB, limits.MaxDBSizeMB, cfg.Rates.DBSizePerGB),
		mbLine(domain.DimensionStorage, storageMB, limits.MaxStorageMB, cfg.Rates.StoragePerGB),
		mbLine(domain.DimensionBandwidth, bandwidthMB, limits.MaxBandwidthMB, cfg.Rates.BandwidthPerGB),
		unitLine(domain.DimensionOrders, orders, limits.MaxOrders, cfg.Rates.PerOrder),
		unitLine(domain.DimensionStaff, staff, limits.MaxStaff, cfg.Rates.PerStaffSeat),
	}

	for _, line := range bill.Lines {
		bill.TotalOverage += line.Charge
	}
	bill.Total = bill.BaseFee + bill.PrioritySupport + bill.TotalOverage
	return bill
}

// mbLine charges ceil(overMB / 1024 * ratePerGB): the rounding applies to the
// monetary amount, so any nonzero overage bills at least 1 NPR.
func mbLine(dim domain.Dimension, usedMB, includedMB, ratePerGB int64) domain.LineItem {
	line := domain.LineItem{Dimension: dim, Used: usedMB, Included: includedMB}
	if includedMB > 0 && usedMB > includedMB {
		line.Overage = usedMB - includedMB
		line.Charge = ceilDiv(line.Overage*ratePerGB, 1024)
	}
	return line
}

func unitLine(dim domain.Dimension, used, included, ratePerUnit int64) domain.LineItem {
	line := domain.LineItem{Dimension: dim, Used: used, Included: included}
	if included > 0 && used > included {
		line.Overage = used - included
		line.Charge = line.Overage * ratePerUnit
	}
	return line
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
