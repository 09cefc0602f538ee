package tax

import (
	"strings"

	"github.com/hanko-field/orderengine/internal/domain"
)

// ActiveZoneID picks the first zone listing the shipping country, falling back to defaultZoneID
// when there is no address or no zone claims the country.
func ActiveZoneID(zones []domain.Zone, address *domain.Address, defaultZoneID string) string {
	if address == nil {
		return defaultZoneID
	}
	country := strings.ToUpper(strings.TrimSpace(address.Country))
	if country == "" {
		return defaultZoneID
	}
	for _, zone := range zones {
		for _, member := range zone.Members {
			if strings.EqualFold(strings.TrimSpace(member), country) {
				return zone.ID
			}
		}
	}
	return defaultZoneID
}
