package poison

import (
	"fmt"

	"github.com/lcalzada-xor/lankill/internal/core/domain"
)

// proxyARPMinClaims is the floor below which a multi-claim gateway is still
// considered normal (its own IP plus a stray reply or two).
const proxyARPMinClaims = 3

// DetectProxyARP inspects the per-MAC claimed-IP correlation from the latest
// sweep and reports whether the gateway answers for most of the segment. A
// proxy-ARP gateway makes sweep results meaningless (every IP resolves to
// the gateway MAC) and makes poisoning ineffective, so the operator is
// warned rather than shown a phantom device list.
func DetectProxyARP(claims map[string][]string, gatewayMAC string) (domain.Warning, bool) {
	if gatewayMAC == "" {
		return domain.Warning{}, false
	}
	gwClaims := len(claims[gatewayMAC])
	if gwClaims < proxyARPMinClaims {
		return domain.Warning{}, false
	}

	total := 0
	seen := make(map[string]struct{})
	for _, ips := range claims {
		for _, ip := range ips {
			if _, ok := seen[ip]; !ok {
				seen[ip] = struct{}{}
				total++
			}
		}
	}
	if total == 0 || gwClaims*2 < total {
		return domain.Warning{}, false
	}

	return domain.Warning{
		Type: domain.WarnProxyARP,
		Message: fmt.Sprintf(
			"gateway %s answered for %d of %d discovered addresses; the segment likely runs proxy ARP and results are unreliable",
			gatewayMAC, gwClaims, total),
	}, true
}
