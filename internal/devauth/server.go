package devauth

import (
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/internal/totp"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/password"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	backupCodeCount = 10
)

// Config tunes a Server. Zero values take the defaults.
type Config struct {
	// JWT signs access tokens. A zero value signs HS256 with a random key.
	JWT        jwt.Config
	RefreshTTL time.Duration
	KeyPrefix  string

	Password password.Config
	TOTP     totp.Config
	Login    rate.Config

	// WSRate and WSBurst bound inbound WebSocket frames per connection.
	WSRate         float64
	WSBurst        int
	OriginPatterns []string

	Logger *slog.Logger
	Now    func() time.Time
}

// Stats counts requests that reached each endpoint.
type Stats struct {
	Login    int64
	Refresh  int64
	Me       int64
	Logout   int64
	WSFrames int64
}

// Server is an in-process implementation of the portal auth API and its WebSocket
// auth channel, backed by Redis.
type Server struct {
	cfg    Config
	redis  redis.UniversalClient
	jwt    *jwt.Manager
	hasher *password.Argon2
	totp   *totp.Generator
	rate   *rate.Limiter
	logger *slog.Logger

	// mu serializes user mutations: backup code use, TOTP counters, MFA enrolment.
	mu sync.Mutex

	accessTTL     atomic.Int64
	refreshDelay  atomic.Int64
	failRefresh   atomic.Bool
	dropWSReplies atomic.Bool

	loginCalls   atomic.Int64
	refreshCalls atomic.Int64
	meCalls      atomic.Int64
	logoutCalls  atomic.Int64
	wsFrames     atomic.Int64
}

// New builds a Server on rdb.
func New(rdb redis.UniversalClient, cfg Config) (*Server, error) {
	if rdb == nil {
		return nil, errors.New("redis client required")
	}
	if cfg.JWT.SigningMethod == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		cfg.JWT.SigningMethod = jwt.MethodHS256
		cfg.JWT.PrivateKey = key
	}
	if cfg.JWT.AccessTTL <= 0 {
		cfg.JWT.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "devauth:"
	}
	if cfg.Password == (password.Config{}) {
		cfg.Password = password.DevConfig()
	}
	if cfg.TOTP == (totp.Config{}) {
		cfg.TOTP = totp.DefaultConfig()
	}
	if cfg.Login.MaxLoginAttempts <= 0 {
		cfg.Login.MaxLoginAttempts = 5
	}
	if cfg.Login.LoginCooldown <= 0 {
		cfg.Login.LoginCooldown = 15 * time.Minute
	}
	if cfg.Login.Prefix == "" {
		cfg.Login.Prefix = cfg.KeyPrefix + "rl:"
	}
	if cfg.WSRate <= 0 {
		cfg.WSRate = 20
	}
	if cfg.WSBurst <= 0 {
		cfg.WSBurst = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	signer, err := jwt.NewManager(cfg.JWT)
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewArgon2(cfg.Password)
	if err != nil {
		return nil, err
	}
	gen, err := totp.New(cfg.TOTP)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		redis:  rdb,
		jwt:    signer,
		hasher: hasher,
		totp:   gen,
		rate:   rate.New(rdb, cfg.Login),
		logger: cfg.Logger,
	}
	s.accessTTL.Store(int64(cfg.JWT.AccessTTL))
	return s, nil
}

// Handler returns the routes:
//
//	POST /api/auth/login
//	POST /api/auth/refresh
//	POST /api/auth/logout
//	GET  /api/auth/me
//	GET  /ws
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/auth").Subrouter()
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	api.Handle("/me", middleware.RequireStrict(s.jwt, s)(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS)
	return r
}

// JWT exposes the token signer so tests can mint tokens.
func (s *Server) JWT() *jwt.Manager { return s.jwt }

// TOTP exposes the code generator so tests can compute valid codes.
func (s *Server) TOTP() *totp.Generator { return s.totp }

// SetAccessTTL changes the lifetime of access tokens issued from now on.
func (s *Server) SetAccessTTL(d time.Duration) { s.accessTTL.Store(int64(d)) }

// SetFailRefresh makes every refresh answer 401.
func (s *Server) SetFailRefresh(fail bool) { s.failRefresh.Store(fail) }

// SetRefreshDelay holds each refresh for d before answering.
func (s *Server) SetRefreshDelay(d time.Duration) { s.refreshDelay.Store(int64(d)) }

// SetDropWebSocketReplies makes the WebSocket endpoint read frames without answering.
func (s *Server) SetDropWebSocketReplies(drop bool) { s.dropWSReplies.Store(drop) }

// Stats returns the request counters.
func (s *Server) Stats() Stats {
	return Stats{
		Login:    s.loginCalls.Load(),
		Refresh:  s.refreshCalls.Load(),
		Me:       s.meCalls.Load(),
		Logout:   s.logoutCalls.Load(),
		WSFrames: s.wsFrames.Load(),
	}
}

func (s *Server) now() time.Time { return s.cfg.Now() }
