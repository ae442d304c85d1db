package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App             AppConfig
	Service         ServiceConfig
	DB              DBConfig
	Redis           RedisConfig
	Mongo           MongoConfig
	Neo4j           Neo4jConfig
	Embedding       EmbeddingConfig
	JWT             JWTConfig
	RateLimit       RateLimitConfig
	Cache           CacheConfig
	Search          SearchConfig
	Recommendations RecommendationsConfig
	Cart            CartConfig
	Retry           RetryConfig
	Reconciler      ReconcilerConfig
	FeatureFlags    FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Search.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ARTISAN_APP_ENV" required:"true"`
	Port         string `envconfig:"ARTISAN_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"ARTISAN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ARTISAN_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"ARTISAN_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ARTISAN_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ARTISAN_DB_DSN"`
	Driver string `envconfig:"ARTISAN_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"ARTISAN_DB_HOST"`
	Port     int    `envconfig:"ARTISAN_DB_PORT" default:"5432"`
	User     string `envconfig:"ARTISAN_DB_USER"`
	Password string `envconfig:"ARTISAN_DB_PASSWORD"`
	Name     string `envconfig:"ARTISAN_DB_NAME"`
	SSLMode  string `envconfig:"ARTISAN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ARTISAN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ARTISAN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ARTISAN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ARTISAN_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"ARTISAN_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ARTISAN_REDIS_URL"`
	Address      string        `envconfig:"ARTISAN_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"ARTISAN_REDIS_PASSWORD"`
	DB           int           `envconfig:"ARTISAN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ARTISAN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ARTISAN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ARTISAN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ARTISAN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ARTISAN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type MongoConfig struct {
	URI            string        `envconfig:"ARTISAN_MONGO_URI" default:"mongodb://localhost:27017/"`
	Database       string        `envconfig:"ARTISAN_MONGO_DB" default:"artisan_market"`
	MaxPoolSize    uint64        `envconfig:"ARTISAN_MONGO_MAX_POOL_SIZE" default:"20"`
	ConnectTimeout time.Duration `envconfig:"ARTISAN_MONGO_CONNECT_TIMEOUT" default:"10s"`
}

type Neo4jConfig struct {
	URI                   string        `envconfig:"ARTISAN_NEO4J_URI" default:"bolt://localhost:7687"`
	User                  string        `envconfig:"ARTISAN_NEO4J_USER" default:"neo4j"`
	Password              string        `envconfig:"ARTISAN_NEO4J_PASSWORD"`
	Database              string        `envconfig:"ARTISAN_NEO4J_DATABASE" default:"neo4j"`
	MaxConnectionPoolSize int           `envconfig:"ARTISAN_NEO4J_MAX_POOL_SIZE" default:"20"`
	ConnectionTimeout     time.Duration `envconfig:"ARTISAN_NEO4J_CONNECT_TIMEOUT" default:"10s"`
}

type EmbeddingConfig struct {
	URL       string        `envconfig:"ARTISAN_EMBEDDING_URL" default:"http://localhost:8090/embed"`
	Dimension int           `envconfig:"ARTISAN_EMBEDDING_DIMENSION" default:"384"`
	Timeout   time.Duration `envconfig:"ARTISAN_EMBEDDING_TIMEOUT" default:"5s"`

	RatePerSecond float64 `envconfig:"ARTISAN_EMBEDDING_RPS" default:"50"`
	Burst         int     `envconfig:"ARTISAN_EMBEDDING_BURST" default:"10"`
}

type JWTConfig struct {
	Secret string `envconfig:"ARTISAN_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"ARTISAN_JWT_ISSUER" default:"artisan-market"`

	ExpirationMinutes int `envconfig:"ARTISAN_JWT_EXPIRATION_MINUTES" default:"60"`
}

type RateLimitConfig struct {
	Window   time.Duration `envconfig:"ARTISAN_RATE_LIMIT_WINDOW" default:"1m"`
	Requests int           `envconfig:"ARTISAN_RATE_LIMIT_REQUESTS" default:"100"`
}

type CacheConfig struct {
	SearchTTL         time.Duration `envconfig:"ARTISAN_CACHE_SEARCH_TTL" default:"1h"`
	SearchNegativeTTL time.Duration `envconfig:"ARTISAN_CACHE_SEARCH_NEGATIVE_TTL" default:"5m"`
	RecommendationTTL time.Duration `envconfig:"ARTISAN_CACHE_RECOMMENDATION_TTL" default:"30m"`
	ProductTTL        time.Duration `envconfig:"ARTISAN_CACHE_PRODUCT_TTL" default:"1h"`
}

type SearchConfig struct {
	CandidateK     int           `envconfig:"ARTISAN_SEARCH_CANDIDATE_K" default:"50"`
	LexicalWeight  float64       `envconfig:"ARTISAN_SEARCH_LEXICAL_WEIGHT" default:"0.5"`
	SemanticWeight float64       `envconfig:"ARTISAN_SEARCH_SEMANTIC_WEIGHT" default:"0.5"`
	Timeout        time.Duration `envconfig:"ARTISAN_SEARCH_TIMEOUT" default:"3s"`
}

func (s SearchConfig) validate() error {
	if s.LexicalWeight < 0 || s.SemanticWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if s.LexicalWeight+s.SemanticWeight == 0 {
		return fmt.Errorf("search weights must not both be zero")
	}
	return nil
}

type RecommendationsConfig struct {
	Timeout time.Duration `envconfig:"ARTISAN_RECOMMENDATIONS_TIMEOUT" default:"3s"`
}

type CartConfig struct {
	TTL           time.Duration `envconfig:"ARTISAN_CART_TTL" default:"24h"`
	ConvertingTTL time.Duration `envconfig:"ARTISAN_CART_CONVERTING_TTL" default:"2m"`
}

type RetryConfig struct {
	MaxAttempts int           `envconfig:"ARTISAN_RETRY_MAX_ATTEMPTS" default:"3"`
	BaseDelay   time.Duration `envconfig:"ARTISAN_RETRY_BASE_DELAY" default:"50ms"`
	MaxDelay    time.Duration `envconfig:"ARTISAN_RETRY_MAX_DELAY" default:"1s"`
}

type ReconcilerConfig struct {
	BatchSize      int `envconfig:"ARTISAN_RECONCILER_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ARTISAN_RECONCILER_POLL_MS" default:"1000"`
	MaxAttempts    int `envconfig:"ARTISAN_RECONCILER_MAX_ATTEMPTS" default:"10"`
	Concurrency    int `envconfig:"ARTISAN_RECONCILER_CONCURRENCY" default:"4"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ARTISAN_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
