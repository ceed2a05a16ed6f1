package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"custody/pkg/requestcontext"
)

type MetadataSuite struct {
	suite.Suite
}

func TestMetadataSuite(t *testing.T) {
	suite.Run(t, new(MetadataSuite))
}

func (s *MetadataSuite) TestParseUserAgent() {
	s.Run("empty user agent returns unknown device", func() {
		s.Equal("Unknown Device", ParseUserAgent(""))
	})

	s.Run("firefox on linux includes browser and OS", func() {
		label := ParseUserAgent("Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
		s.Contains(label, "Firefox")
		s.Contains(label, " on ")
	})

	s.Run("safari on iphone uses the platform", func() {
		label := ParseUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
		s.Contains(label, "iPhone")
	})
}

func (s *MetadataSuite) TestClientIPFromRequest() {
	s.Run("first forwarded hop wins", func() {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.2")
		s.Equal("203.0.113.9", ClientIPFromRequest(r))
	})

	s.Run("x-real-ip when no forwarded chain", func() {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Real-IP", " 198.51.100.4 ")
		s.Equal("198.51.100.4", ClientIPFromRequest(r))
	})

	s.Run("remote addr without port", func() {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "192.0.2.1:5555"
		s.Equal("192.0.2.1", ClientIPFromRequest(r))
	})
}

func (s *MetadataSuite) TestMiddlewarePopulatesContext() {
	var ip, label string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		label = requestcontext.DeviceLabel(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	h.ServeHTTP(httptest.NewRecorder(), r)

	s.Equal("192.0.2.1", ip)
	s.Equal("Unknown Device", label)
}
