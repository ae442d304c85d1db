package config

const (
	EnvPrefix = "ARTISAN"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "ARTISAN_APP_ENV"
	EnvPort     = "ARTISAN_APP_PORT"
	EnvDBDSN    = "ARTISAN_DB_DSN"
	EnvDBHost   = "ARTISAN_DB_HOST"
	EnvDBUser   = "ARTISAN_DB_USER"
	EnvDBName   = "ARTISAN_DB_NAME"
	EnvDBPort   = "ARTISAN_DB_PORT"
	EnvRedisURL = "ARTISAN_REDIS_URL"

	EnvJWTSecret = "ARTISAN_JWT_SECRET"

	EnvSearchLexicalWeight  = "ARTISAN_SEARCH_LEXICAL_WEIGHT"
	EnvSearchSemanticWeight = "ARTISAN_SEARCH_SEMANTIC_WEIGHT"
	EnvCacheSearchTTL       = "ARTISAN_CACHE_SEARCH_TTL"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
