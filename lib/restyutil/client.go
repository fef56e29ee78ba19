package restyutil

import (
	"net/http/cookiejar"
	"time"

	"github.com/mmry-org/mmry-plugins/internal/assert"
	"github.com/mmry-org/mmry-plugins/internal/components/telemetry"
	libtelemetry "github.com/mmry-org/mmry-plugins/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Options configures the resty clients plugins talk to remote APIs with.
type Options struct {
	BaseURL   string
	UserAgent string
	// Timeout defaults to 30 seconds.
	Timeout time.Duration
	// RequestsPerSecond defaults to 2, a negative value disables rate limiting.
	RequestsPerSecond float64
	// CloudflareBypass mimics a browser's tls fingerprint and headers.
	CloudflareBypass bool
	// Tracer names the otel tracer requests are recorded with.
	Tracer string
	// Dump receives every exchange when not nil.
	Dump Output
}

// NewClient creates a resty client with a cookie jar, user agent, timeout and rate
// limit, reporting every request to `tel`.
func NewClient(opts Options, tel telemetry.API) (*resty.Client, error) {
	assert.NotNil(tel, "telemetry")

	client := resty.New()
	if opts.BaseURL != "" {
		client.SetBaseURL(opts.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	client.SetHeader("user-agent", userAgent)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second * 30
	}
	client.SetTimeout(timeout)

	rps := opts.RequestsPerSecond
	if rps == 0 {
		rps = 2
	}
	if rps > 0 {
		// max burst >= 2 just means that no requests will be dropped
		burst := int(rps)
		if burst < 2 {
			burst = 2
		}
		rateLimiter := rate.NewLimiter(rate.Limit(rps), burst)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	tracer := opts.Tracer
	if tracer == "" {
		tracer = "resty"
	}
	libtelemetry.InstrumentResty(client, tracer)
	telemetry.InstrumentResty(client, tel)
	DumpMessages(client, "", opts.Dump)

	return client, nil
}
