package deps

import (
	"time"

	"github.com/MrSnakeDoc/cowrite/internal/events"
	"github.com/MrSnakeDoc/cowrite/internal/evidence"
	"github.com/MrSnakeDoc/cowrite/internal/generator"
	"github.com/MrSnakeDoc/cowrite/internal/identity"
	"github.com/MrSnakeDoc/cowrite/internal/logger"
	"github.com/MrSnakeDoc/cowrite/internal/policy"
	"github.com/MrSnakeDoc/cowrite/internal/quota"
	"github.com/MrSnakeDoc/cowrite/internal/session"
	redisstore "github.com/MrSnakeDoc/cowrite/internal/store/redis"
)

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	TimeNow      func() time.Time // for testing, defaults to time.Now
	AllowedHosts []string         // Host headers allowed to access the server
	AllowedCIDRS []string         // IPs allowed to access operational endpoints
	TrustProxy   bool             // true if running behind a trusted reverse proxy (e.g., cloudflared)
	CORSOrigins  []string         // editor origins allowed to call the API

	// Editor API token bucket, per client IP
	RateLimitBurst    int
	RateLimitPerMin   int
	RateLimitMaxIPs   int
	RateLimitIdleTTL  time.Duration
	RateLimitSweepInt time.Duration

	Identity     identity.Provider
	UserHeader   string // header the identity provider reads, exposed through CORS
	Sessions     *session.Manager
	Hub          *events.Hub
	Ledger       quota.Ledger
	QuotaWindow  quota.Window
	Policy       *policy.Holder
	Store        *redisstore.Store // nil with the memory backend
	StoreBackend string
	Retriever    evidence.Retriever
	Generator    generator.Generator

	ReloadTrigger chan struct{} // manual policy reload, nil without a policy file
}

// Now returns the injected clock reading, falling back to time.Now.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
