package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"cors-wrapper-go/internal/config"
)

// corsAllowHeaders are the request headers browsers may send cross-origin.
var corsAllowHeaders = []string{
	echo.HeaderContentType,
	echo.HeaderAuthorization,
	"X-Requested-With",
	echo.HeaderAccept,
	"api_key",
	"x-api-key",
	"x-auth-token",
	"x-custom-header",
}

// CORS returns the CORS middleware for the active deployment mode. A "*"
// entry allows every origin; credentials are allowed either way, so the
// request origin is echoed back instead of a literal "*".
func CORS(cfg *config.Config) echo.MiddlewareFunc {
	origins := cfg.AllowedOrigins()

	mwCfg := echomw.CORSConfig{
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodPatch,
			http.MethodOptions,
		},
		AllowHeaders:     corsAllowHeaders,
		AllowCredentials: true,
		MaxAge:           cfg.CORS.MaxAgeSeconds,
	}
	if slices.Contains(origins, "*") {
		mwCfg.AllowOriginFunc = func(string) (bool, error) { return true, nil }
	} else {
		mwCfg.AllowOrigins = origins
	}

	return echomw.CORSWithConfig(mwCfg)
}
