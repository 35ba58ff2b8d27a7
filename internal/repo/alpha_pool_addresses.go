package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// AlphaPoolAddressesRepo reads the set of actively monitored trader
// addresses from the alpha_pool_addresses table. Correlation hydration
// pairs every two addresses from this set, mirroring the all-pairs
// iteration the original correlation computation runs over the alpha pool.
type AlphaPoolAddressesRepo struct {
	conn sqlx.SqlConn
}

// NewAlphaPoolAddressesRepo returns an AlphaPoolAddressesRepo backed by
// conn.
func NewAlphaPoolAddressesRepo(conn sqlx.SqlConn) *AlphaPoolAddressesRepo {
	return &AlphaPoolAddressesRepo{conn: conn}
}

const activeAddressesQuery = `
SELECT LOWER(address) AS address
FROM public.alpha_pool_addresses
WHERE is_active = true
ORDER BY address`

// ActiveAddresses returns every lower-cased active address on file.
func (r *AlphaPoolAddressesRepo) ActiveAddresses(ctx context.Context) ([]string, error) {
	var addresses []string
	if err := r.conn.QueryRowsCtx(ctx, &addresses, activeAddressesQuery); err != nil {
		return nil, fmt.Errorf("alphaPoolAddressesRepo.ActiveAddresses: %w", err)
	}
	return addresses, nil
}

// ActiveAddressPairs returns every unordered pair of distinct active
// addresses, suitable for feeding correlation.Loader-style all-pairs
// hydration.
func (r *AlphaPoolAddressesRepo) ActiveAddressPairs(ctx context.Context) ([][2]string, error) {
	addresses, err := r.ActiveAddresses(ctx)
	if err != nil {
		return nil, err
	}
	var pairs [][2]string
	for i := 0; i < len(addresses); i++ {
		for j := i + 1; j < len(addresses); j++ {
			if strings.EqualFold(addresses[i], addresses[j]) {
				continue
			}
			pairs = append(pairs, [2]string{addresses[i], addresses[j]})
		}
	}
	return pairs, nil
}
