package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Grader runtimes supported by the grading bridge.
const (
	GraderRuntimeProcess = "process"
	GraderRuntimeDocker  = "docker"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	EventsBase  string

	JWTSecret string
	JWTTTL    time.Duration

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	CloudinaryRawFolder    string

	UploadDir        string
	MaxUploadBytes   int64
	MaxArchiveBytes  int64
	GraderRuntime    string
	GraderPython     string
	GraderScript     string
	GraderTimeout    time.Duration
	GraderImage      string
	DockerHost       string
	GraderMemoryMB   int
	GraderCPUShares  int
	GradingWorkers   int
	GradingScratch   string
	DownloadTimeout  time.Duration
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPassword     string
	SMTPFrom         string
	ClientURL        string
	TeacherClientURL string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// CloudinaryEnabled reports whether remote image storage credentials are present.
func (c Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// AllowedOrigins lists the browser origins permitted by CORS.
func (c Config) AllowedOrigins() string {
	origins := make([]string, 0, 2)
	for _, origin := range []string{c.ClientURL, c.TeacherClientURL} {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ",")
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EDUMARK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	v.SetDefault("app.name", "EduMark API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.channel", "edumark")
	v.SetDefault("jwt.ttl", "168h")
	v.SetDefault("cloudinary.folder", "edumark/submissions")
	v.SetDefault("cloudinary.raw_folder", "edumark/raw")
	v.SetDefault("upload.dir", "uploads")
	v.SetDefault("upload.max_mb", 10)
	v.SetDefault("upload.zip_max_mb", 100)
	v.SetDefault("grader.runtime", GraderRuntimeProcess)
	v.SetDefault("grader.python", "python3")
	v.SetDefault("grader.script", "ocr_llm/main_processor.py")
	v.SetDefault("grader.timeout", "10m")
	v.SetDefault("grader.docker_image", "edumark/grader:latest")
	v.SetDefault("grader.memory_mb", 1024)
	v.SetDefault("grader.cpu_shares", 512)
	v.SetDefault("grading.workers", 2)
	v.SetDefault("grading.scratch_dir", "uploads/temp")
	v.SetDefault("grading.download_timeout", "2m")
	v.SetDefault("smtp.port", 587)

	jwtTTL, err := parseDuration(v, "jwt.ttl", 168*time.Hour)
	if err != nil {
		return Config{}, fmt.Errorf("invalid jwt ttl: %w", err)
	}

	graderTimeout, err := parseDuration(v, "grader.timeout", 10*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid grader timeout: %w", err)
	}

	downloadTimeout, err := parseDuration(v, "grading.download_timeout", 2*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid download timeout: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventsBase:             v.GetString("events.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		JWTTTL:                 jwtTTL,
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		CloudinaryRawFolder:    v.GetString("cloudinary.raw_folder"),
		UploadDir:              v.GetString("upload.dir"),
		MaxUploadBytes:         int64(v.GetInt("upload.max_mb")) << 20,
		MaxArchiveBytes:        int64(v.GetInt("upload.zip_max_mb")) << 20,
		GraderRuntime:          strings.ToLower(strings.TrimSpace(v.GetString("grader.runtime"))),
		GraderPython:           v.GetString("grader.python"),
		GraderScript:           v.GetString("grader.script"),
		GraderTimeout:          graderTimeout,
		GraderImage:            v.GetString("grader.docker_image"),
		DockerHost:             v.GetString("grader.docker_host"),
		GraderMemoryMB:         v.GetInt("grader.memory_mb"),
		GraderCPUShares:        v.GetInt("grader.cpu_shares"),
		GradingWorkers:         v.GetInt("grading.workers"),
		GradingScratch:         v.GetString("grading.scratch_dir"),
		DownloadTimeout:        downloadTimeout,
		SMTPHost:               v.GetString("smtp.host"),
		SMTPPort:               v.GetInt("smtp.port"),
		SMTPUser:               v.GetString("smtp.user"),
		SMTPPassword:           v.GetString("smtp.password"),
		SMTPFrom:               v.GetString("smtp.from"),
		ClientURL:              v.GetString("client.url"),
		TeacherClientURL:       v.GetString("client.teacher_url"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.GraderRuntime {
	case GraderRuntimeProcess, GraderRuntimeDocker:
	default:
		return Config{}, fmt.Errorf("unsupported grader runtime %q", cfg.GraderRuntime)
	}

	if cfg.GradingWorkers <= 0 {
		cfg.GradingWorkers = 1
	}

	if cfg.GraderMemoryMB <= 0 {
		cfg.GraderMemoryMB = 1024
	}

	if cfg.GraderCPUShares <= 0 {
		cfg.GraderCPUShares = 512
	}

	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}

	if cfg.MaxArchiveBytes <= 0 {
		cfg.MaxArchiveBytes = 100 << 20
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return fallback, nil
	}

	return parsed, nil
}
