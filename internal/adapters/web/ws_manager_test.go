package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lcalzada-xor/lankill/internal/adapters/sniffer"
	"github.com/lcalzada-xor/lankill/internal/core/services/audit"
	"github.com/lcalzada-xor/lankill/internal/core/services/network"
	"github.com/lcalzada-xor/lankill/internal/core/services/registry"
)

func originRequest(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestCheckOrigin_FollowsConfiguredPort(t *testing.T) {
	reg := registry.NewDeviceRegistry()
	svc := network.NewService(sniffer.NewMockScanner(reg), reg, audit.NewService(&memAuditRepo{}))
	m := NewWSManager(svc, "0.0.0.0:9090")
	check := m.upgrader.CheckOrigin

	assert.True(t, check(originRequest("")), "same-origin requests carry no Origin header")
	assert.True(t, check(originRequest("http://localhost:9090")))
	assert.True(t, check(originRequest("http://127.0.0.1:9090")))
	assert.True(t, check(originRequest("http://[::1]:9090")))

	assert.False(t, check(originRequest("http://localhost:8080")), "default port is not special once -addr changes")
	assert.False(t, check(originRequest("http://evil.example:9090")))
}

func TestAllowedOrigins_BadAddrFallsBack(t *testing.T) {
	assert.Contains(t, allowedOrigins("not-an-addr"), "http://localhost:8080")
	assert.Contains(t, allowedOrigins(":3000"), "http://localhost:3000")
}
