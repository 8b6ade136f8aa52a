package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// SecurityConfig controls the response headers. Every field left empty or
// zero drops its header.
type SecurityConfig struct {
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	FrameOptions          string
	ContentSecurityPolicy string
	ReferrerPolicy        string
	// NoStore marks responses uncacheable. Visit, lab and prescription
	// payloads must not be kept by shared caches.
	NoStore bool
}

func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		FrameOptions:          "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
		NoStore:               true,
	}
}

// headers renders the config once.
func (cfg SecurityConfig) headers() [][2]string {
	h := [][2]string{{"X-Content-Type-Options", "nosniff"}}
	if cfg.HSTSMaxAge > 0 {
		v := "max-age=" + strconv.Itoa(cfg.HSTSMaxAge)
		if cfg.HSTSIncludeSubdomains {
			v += "; includeSubDomains"
		}
		h = append(h, [2]string{"Strict-Transport-Security", v})
	}
	if cfg.FrameOptions != "" {
		h = append(h, [2]string{"X-Frame-Options", cfg.FrameOptions})
	}
	if cfg.ContentSecurityPolicy != "" {
		h = append(h, [2]string{"Content-Security-Policy", cfg.ContentSecurityPolicy})
	}
	if cfg.ReferrerPolicy != "" {
		h = append(h, [2]string{"Referrer-Policy", cfg.ReferrerPolicy})
	}
	if cfg.NoStore {
		h = append(h, [2]string{"Cache-Control", "no-store"}, [2]string{"Pragma", "no-cache"})
	}
	return h
}

func SecurityHeaders(config SecurityConfig) gin.HandlerFunc {
	headers := config.headers()
	return func(c *gin.Context) {
		for _, kv := range headers {
			c.Header(kv[0], kv[1])
		}
		c.Next()
	}
}
