package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// IPWhitelist only lets through clients whose IP matches an entry. Entries
// are plain addresses or CIDR blocks. An empty list allows everyone.
func IPWhitelist(entries []string) gin.HandlerFunc {
	var nets []*net.IPNet
	exact := make(map[string]bool)
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, n, err := net.ParseCIDR(e); err == nil {
			nets = append(nets, n)
			continue
		}
		exact[e] = true
	}
	open := len(nets) == 0 && len(exact) == 0

	return func(c *gin.Context) {
		if open || allowedIP(c.ClientIP(), exact, nets) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	}
}

func allowedIP(ip string, exact map[string]bool, nets []*net.IPNet) bool {
	if exact[ip] {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}
