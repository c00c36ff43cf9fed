package config

import (
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// JWT
	JWTSecret    string
	JWTExpiresIn time.Duration

	// AWS S3
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	S3BucketName       string

	// Server
	Port     string
	AppEnv   string
	Timezone string

	// File Upload
	MaxFileSize       int64
	AllowedExtensions string

	// Logging
	LogLevel       string
	LogFile        string
	LogArchiveDays int

	// Portal rules
	CancelCutoff      time.Duration
	WorkflowTTL       time.Duration
	MockTestQuestions int
	MaintenanceCron   string

	// Feature Toggles
	UseRedisWorkflow bool
	SkipMigrate      bool
	SeedData         bool
}

// GetDSN builds the MySQL DSN. DATETIME columns are read and written in the
// portal timezone so exam dates keep their calendar day.
func (c *Config) GetDSN() string {
	loc := "Local"
	if tz := c.Location(); tz != time.Local {
		loc = url.QueryEscape(tz.String())
	}
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=" + loc
}

// Location resolves the configured timezone, falling back to the server's local zone.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

var AppConfig *Config

func LoadConfig() {
	useSSM := getEnv("USE_SSM", "false") == "true"

	var paramMap map[string]string

	// Stage & base path for SSM
	basePath := strings.TrimRight(getEnv("SSM_BASE_PATH", "/jpjportal"), "/")
	stage := getEnv("STAGE", getEnv("APP_ENV", "production"))
	prefix := basePath + "/" + stage

	if useSSM {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(getEnv("AWS_REGION", "ap-southeast-1"))})
		if err != nil {
			log.Fatal("Failed to create AWS session:", err)
		}
		log.Printf("Using AWS SSM Parameter Store (prefix=%s)", prefix)
		paramMap = fetchSSMParameters(ssm.New(sess), prefix)
	} else {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: .env file not found, using environment variables")
		}
	}

	getVal := func(key, def string) string {
		if useSSM {
			if v, ok := paramMap[strings.ToUpper(key)]; ok && v != "" {
				return v
			}
		}
		return getEnv(strings.ToUpper(key), def)
	}

	jwtExpires, err := ParseDuration(getVal("JWT_EXPIRES_IN", "24h"))
	if err != nil {
		log.Fatal("Invalid JWT_EXPIRES_IN format:", err)
	}
	cancelCutoff, err := ParseDuration(getVal("CANCEL_CUTOFF", "24h"))
	if err != nil {
		log.Fatal("Invalid CANCEL_CUTOFF format:", err)
	}
	workflowTTL, err := ParseDuration(getVal("WORKFLOW_TTL", "30m"))
	if err != nil {
		log.Fatal("Invalid WORKFLOW_TTL format:", err)
	}

	maxFileSize, err := strconv.ParseInt(getVal("MAX_FILE_SIZE", "20971520"), 10, 64)
	if err != nil {
		log.Fatal("Invalid MAX_FILE_SIZE format:", err)
	}

	AppConfig = &Config{
		DBHost:     getVal("DB_HOST", "localhost"),
		DBPort:     getVal("DB_PORT", "3306"),
		DBUser:     getVal("DB_USER", "root"),
		DBPassword: getVal("DB_PASSWORD", ""),
		DBName:     getVal("DB_NAME", "jpjportal"),

		RedisHost:     getVal("REDIS_HOST", "localhost"),
		RedisPort:     getVal("REDIS_PORT", "6379"),
		RedisPassword: getVal("REDIS_PASSWORD", ""),

		JWTSecret:    getVal("JWT_SECRET", "change_me_jwt_secret"),
		JWTExpiresIn: jwtExpires,

		AWSRegion:          getVal("AWS_REGION", "ap-southeast-1"),
		AWSAccessKeyID:     getVal("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getVal("AWS_SECRET_ACCESS_KEY", ""),
		S3BucketName:       getVal("S3_BUCKET_NAME", "jpjportal-storage"),

		Port:     getVal("PORT", "3000"),
		AppEnv:   getVal("APP_ENV", "development"),
		Timezone: getVal("TIMEZONE", "Asia/Kuala_Lumpur"),

		MaxFileSize:       maxFileSize,
		AllowedExtensions: getVal("ALLOWED_EXTENSIONS", "pdf,jpg,jpeg,png,mp4"),

		LogLevel:       getVal("LOG_LEVEL", "info"),
		LogFile:        getVal("LOG_FILE", "logs/app.log"),
		LogArchiveDays: atoiDefault(getVal("LOG_ARCHIVE_DAYS", "30"), 30),

		CancelCutoff:      cancelCutoff,
		WorkflowTTL:       workflowTTL,
		MockTestQuestions: atoiDefault(getVal("MOCK_TEST_QUESTIONS", "20"), 20),
		MaintenanceCron:   getVal("MAINTENANCE_CRON", "@every 15m"),

		UseRedisWorkflow: strings.ToLower(getVal("USE_REDIS_WORKFLOW", "true")) == "true",
		SkipMigrate:      strings.ToLower(getVal("SKIP_MIGRATE", "false")) == "true",
		SeedData:         strings.ToLower(getVal("SEED_DATA", "false")) == "true",
	}

	validateConfig(AppConfig, useSSM)
}

// ParseDuration accepts Go durations plus the day/week shorthands ("7d", "2w").
func ParseDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err == nil {
		return d, nil
	}
	s := strings.TrimSpace(strings.ToLower(raw))
	if len(s) > 1 {
		if n, convErr := strconv.Atoi(s[:len(s)-1]); convErr == nil {
			switch s[len(s)-1] {
			case 'd':
				return time.Duration(n) * 24 * time.Hour, nil
			case 'w':
				return time.Duration(n*7) * 24 * time.Hour, nil
			}
		}
	}
	return 0, err
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// fetchSSMParameters reads every parameter under prefix, keyed by the
// upper-cased last path segment ("/jpjportal/production/db_host" -> DB_HOST).
func fetchSSMParameters(client ssmiface.SSMAPI, prefix string) map[string]string {
	out := make(map[string]string)
	in := &ssm.GetParametersByPathInput{
		Path:           aws.String(prefix),
		WithDecryption: aws.Bool(true),
		Recursive:      aws.Bool(true),
	}
	err := client.GetParametersByPathPages(in, func(page *ssm.GetParametersByPathOutput, _ bool) bool {
		for _, p := range page.Parameters {
			name, value := aws.StringValue(p.Name), aws.StringValue(p.Value)
			key := name[strings.LastIndex(name, "/")+1:]
			if key != "" && value != "" {
				out[strings.ToUpper(key)] = value
			}
		}
		return true
	})
	if err != nil {
		log.Printf("Warning: unable to fetch SSM parameters for prefix %s: %v", prefix, err)
	}
	return out
}

func validateConfig(c *Config, usedSSM bool) {
	if strings.ToLower(c.AppEnv) != "production" {
		return
	}
	required := map[string]string{
		"DB_PASSWORD": c.DBPassword,
		"JWT_SECRET":  c.JWTSecret,
	}
	for k, v := range required {
		if strings.TrimSpace(v) == "" {
			log.Fatalf("Missing required secret %s in production (SSM=%v)", k, usedSSM)
		}
	}
	if len(c.JWTSecret) < 16 {
		log.Fatal("JWT_SECRET too short (min 16 chars)")
	}
}
